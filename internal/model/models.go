package model

// Target is a sky source. Coordinates are nullable: the instrument header
// only carries the source name, so ra/dec are filled by a later pass (or an
// operator) once the observing-script files have been read.
type Target struct {
	ID   string // UUID
	Name string
	RA   *float64 // degrees
	Dec  *float64 // degrees
}

// Allocation is a telescope time grant, e.g. term "10B" number 36.
// (Term, Number) is unique.
type Allocation struct {
	ID     string // UUID
	Term   string
	Number int
}

// Session is one observing session (typically one night) under an
// allocation. (AllocationID, Number) is unique.
type Session struct {
	ID           string // UUID
	AllocationID string // Foreign key to Allocation
	Number       int
}

// ScanSet groups the scans issued by a single observing-script invocation.
// The session is stored directly rather than derived from the member scans;
// every scan attached to the set must belong to this session.
type ScanSet struct {
	ID        string // UUID
	SessionID string // Foreign key to Session
	Kind      string // Free-text category, e.g. "map", "calibration"
}

// Scan is a contiguous series of integrations. (SessionID, Number) is
// unique. Bounding-box and timing fields are nullable until a full-data
// extraction pass has been run; once set they never change.
type Scan struct {
	ID        string  // UUID
	SessionID string  // Foreign key to Session
	Number    int     // Instrument scan number, unique within the session
	ScanSetID *string // Foreign key to ScanSet, optional
	TargetID  *string // Foreign key to Target, optional
	Mode      string  // Observation mode string from the header

	Cadence   *float64 // Seconds per sample
	RAMin     *float64 // degrees
	RAMax     *float64
	DecMin    *float64
	DecMax    *float64
	AzMin     *float64
	AzMax     *float64
	ElMin     *float64
	ElMax     *float64
	StartTime *float64 // Unix seconds
	EndTime   *float64
}

// File is a generic physical/logical file record. Checksum is the SHA-256
// of the content, nullable until first computed.
type File struct {
	ID        string // UUID
	Filename  string
	Directory string
	Checksum  *string // SHA-256 hex (not a UUID)
}

// FileCopy is one stored copy of a File's bytes at some host/path.
// A copy whose bytes no longer hash to the file's checksum is flagged
// corrupt rather than having its recorded checksum overwritten.
type FileCopy struct {
	ID       string // UUID
	FileID   string // Foreign key to File
	Host     string
	Path     string
	Checksum *string // SHA-256 hex as last computed from this copy's bytes
	Corrupt  bool
}

// GuppiFile marks a File as instrument data belonging to a scan. A scan may
// span several sequential files; (ScanID, Number) is unique and FileID is
// 1:1 with the underlying File.
type GuppiFile struct {
	ID     string // UUID
	ScanID string // Foreign key to Scan
	FileID string // Foreign key to File
	Number int    // Sequence number within the scan
}

// IndexOperation records one CLI invocation that mutated the index.
type IndexOperation struct {
	ID         int64
	StartedAt  float64 // Unix seconds
	FinishedAt *float64
	Operation  string
	Parameters string
	Status     string
}
