package gbtim

import "io"

// CopyStore gives streaming read access to file copies held by one host, so
// copies can be hashed and verified wherever they live (local disk, an
// object store, a test fixture). Implementations must not require loading a
// whole file into memory.
type CopyStore interface {
	// Host is the name copies on this store are recorded under.
	Host() string

	// Open opens the copy at the given host-local path for reading.
	Open(path string) (io.ReadCloser, error)
}
