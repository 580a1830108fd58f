package testutil

import (
	"fmt"

	"gbtim/internal/guppi"
)

// FakeRawFile is an in-memory stand-in for the external binary-file library.
type FakeRawFile struct {
	Headers map[string]string
	Columns map[string][]float64

	// ColumnErr, when set, is returned by every Column call.
	ColumnErr error

	Closed bool
}

func (f *FakeRawFile) HeaderValue(key string) (string, bool) {
	v, ok := f.Headers[key]
	return v, ok
}

func (f *FakeRawFile) Column(name string) ([]float64, error) {
	if f.ColumnErr != nil {
		return nil, f.ColumnErr
	}
	col, ok := f.Columns[name]
	if !ok {
		return nil, fmt.Errorf("no such column: %s", name)
	}
	return col, nil
}

func (f *FakeRawFile) Close() error {
	f.Closed = true
	return nil
}

// FakeOpener returns a guppi.Opener backed by the given path->file map.
// Opening an unknown path fails, like a missing file on disk.
func FakeOpener(files map[string]*FakeRawFile) guppi.Opener {
	return func(path string) (guppi.RawFile, error) {
		f, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("open %s: no such file", path)
		}
		return f, nil
	}
}

// NewGuppiHeaders returns a header dict for a typical instrument file,
// usable as-is for header-depth extraction tests.
func NewGuppiHeaders() map[string]string {
	return map[string]string{
		"OBS_MODE": "  RALONGMAP ",
		"PROJID":   "10B_036_05",
		"SRC_NAME": " wigglez1hr_centre ",
		"TBIN":     "0.001024",
		"STT_IMJD": "58849",
		"STT_SMJD": "0",
		"STT_OFFS": "0",
	}
}

// NewGuppiColumns returns a three-subintegration sample table with known
// bounds, matching the headers from NewGuppiHeaders.
func NewGuppiColumns() map[string][]float64 {
	return map[string][]float64{
		"OFFS_SUB": {0.5, 1.5, 2.5},
		"TSUBINT":  {1.0, 1.0, 1.0},
		"RA_SUB":   {15.0, 15.5, 16.0},
		"DEC_SUB":  {-1.0, -0.5, 0.0},
		"TEL_AZ":   {120.0, 121.0, 122.0},
		"TEL_ZEN":  {10.0, 45.0, 80.0},
	}
}
