package gbtim

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// checksumBlockSize is the read block size used while hashing. Instrument
// files run to gigabytes, so content is streamed rather than slurped.
const checksumBlockSize = 64 * 1024

// Checksum streams r through SHA-256 in fixed-size blocks and returns the
// lowercase hex digest and the number of bytes read.
func Checksum(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, checksumBlockSize))
	if err != nil {
		return "", n, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
