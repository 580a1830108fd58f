package guppi

// RawFile is the boundary to the external binary-file library that decodes
// the instrument's header/table structure. Implementations expose the primary
// header as a key/value dict and the per-subintegration sample table as named
// columns. Reading the header must not force loading of bulk sample data.
type RawFile interface {
	// HeaderValue returns the raw string value for a primary-header key,
	// and whether the key is present.
	HeaderValue(key string) (string, bool)

	// Column returns the named per-subintegration column, one value per
	// sample row, in file order.
	Column(name string) ([]float64, error)

	Close() error
}

// Opener opens a raw instrument file for reading. The extractor takes an
// Opener so the decoding library stays pluggable and tests can supply fakes.
type Opener func(path string) (RawFile, error)

// Header keys read by the extractor.
const (
	keyObsMode    = "OBS_MODE"
	keyProjectID  = "PROJID"
	keySourceName = "SRC_NAME"
	keyCadence    = "TBIN"
	keyStartIMJD  = "STT_IMJD"
	keyStartSMJD  = "STT_SMJD"
	keyStartOffs  = "STT_OFFS"
)

// Sample-table columns read by full-data extraction.
const (
	colSubintOffset   = "OFFS_SUB"
	colSubintDuration = "TSUBINT"
	colRA             = "RA_SUB"
	colDec            = "DEC_SUB"
	colAzimuth        = "TEL_AZ"
	colZenith         = "TEL_ZEN"
)
