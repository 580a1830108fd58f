package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const (
	fitsBlockSize = 2880
	fitsCardSize  = 80
)

func card(key, value string) []byte {
	c := make([]byte, fitsCardSize)
	for i := range c {
		c[i] = ' '
	}
	copy(c, fmt.Sprintf("%-8s= %s", key, value))
	return c
}

func endCard() []byte {
	c := make([]byte, fitsCardSize)
	for i := range c {
		c[i] = ' '
	}
	copy(c, "END")
	return c
}

func pad(b []byte, fill byte) []byte {
	if rem := len(b) % fitsBlockSize; rem != 0 {
		p := make([]byte, fitsBlockSize-rem)
		for i := range p {
			p[i] = fill
		}
		b = append(b, p...)
	}
	return b
}

// WriteGuppiFITS writes a minimal but well-formed GUPPI PSRFITS file named
// filename under dir: a primary header with the standard observation keys
// and a three-row SUBINT table matching NewGuppiColumns. It returns the full
// path.
func WriteGuppiFITS(t *testing.T, dir, filename string) string {
	t.Helper()

	var buf bytes.Buffer

	var header []byte
	for _, c := range [][2]string{
		{"SIMPLE", "T"},
		{"BITPIX", "8"},
		{"NAXIS", "0"},
		{"OBS_MODE", "'RALONGMAP'"},
		{"PROJID", "'10B_036_05'"},
		{"SRC_NAME", "'wigglez1hr_centre'"},
		{"TBIN", "0.001024"},
		{"STT_IMJD", "58849"},
		{"STT_SMJD", "0"},
		{"STT_OFFS", "0"},
	} {
		header = append(header, card(c[0], c[1])...)
	}
	header = append(header, endCard()...)
	buf.Write(pad(header, ' '))

	names := []string{"TSUBINT", "OFFS_SUB", "RA_SUB", "DEC_SUB", "TEL_AZ", "TEL_ZEN"}
	columns := NewGuppiColumns()
	rows := len(columns[names[0]])
	rowBytes := 8 * len(names)

	var ext []byte
	for _, c := range [][2]string{
		{"XTENSION", "'BINTABLE'"},
		{"BITPIX", "8"},
		{"NAXIS", "2"},
		{"NAXIS1", fmt.Sprintf("%d", rowBytes)},
		{"NAXIS2", fmt.Sprintf("%d", rows)},
		{"TFIELDS", fmt.Sprintf("%d", len(names))},
		{"EXTNAME", "'SUBINT'"},
	} {
		ext = append(ext, card(c[0], c[1])...)
	}
	for i, name := range names {
		ext = append(ext, card(fmt.Sprintf("TTYPE%d", i+1), "'"+name+"'")...)
		ext = append(ext, card(fmt.Sprintf("TFORM%d", i+1), "'1D'")...)
	}
	ext = append(ext, endCard()...)
	buf.Write(pad(ext, ' '))

	var data []byte
	for row := 0; row < rows; row++ {
		for _, name := range names {
			var cell [8]byte
			binary.BigEndian.PutUint64(cell[:], math.Float64bits(columns[name][row]))
			data = append(data, cell[:]...)
		}
	}
	buf.Write(pad(data, 0))

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("writing FITS fixture: %v", err)
	}
	return path
}
