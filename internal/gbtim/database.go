package gbtim

import (
	"gbtim/internal/guppi"
	"gbtim/internal/model"
)

// Resolution is the set of rows an extraction record resolved to. Ancestors
// are always populated; Target is nil when the record carried no source name.
type Resolution struct {
	Allocation *model.Allocation
	Session    *model.Session
	Target     *model.Target
	Scan       *model.Scan
	File       *model.File
	GuppiFile  *model.GuppiFile
}

// AllocationName returns the derived allocation name, e.g. "GBT10B-036".
func (r *Resolution) AllocationName() string {
	return model.AllocationName(r.Allocation.Term, r.Allocation.Number)
}

// SessionIdentity returns the derived session label, e.g. "GBT10B-036.0005".
func (r *Resolution) SessionIdentity() string {
	return model.SessionIdentity(r.AllocationName(), r.Session.Number)
}

// ScanIdentity returns the derived scan label.
func (r *Resolution) ScanIdentity() string {
	return model.ScanIdentity(r.SessionIdentity(), r.Scan.Number)
}

// Identity returns the derived identity of the leaf GuppiFile row.
func (r *Resolution) Identity() string {
	return model.GuppiFileIdentity(r.ScanIdentity(), r.GuppiFile.Number)
}

// Database provides an interface for metadata index storage. Rows are
// created only through ResolveRecord and the explicit operations below;
// nothing in this subsystem deletes rows.
type Database interface {
	// ResolveRecord maps an extraction record onto index rows, creating any
	// missing ancestor, in a single transaction: either every level is
	// matched/created and committed, or nothing is. The record must carry at
	// least header-depth fields. Fields the record populates that an
	// existing row already holds with a different value cause a
	// ConsistencyError; null fields transition to values exactly once.
	ResolveRecord(record *guppi.Record) (*Resolution, error)

	// Allocation/session/scan lookups for reporting.

	FindAllocation(term string, number int) (*model.Allocation, error)
	ListAllocations() ([]*model.Allocation, error)
	FindSession(allocationID string, number int) (*model.Session, error)
	ListSessions(allocationID string) ([]*model.Session, error)
	FindScan(sessionID string, number int) (*model.Scan, error)
	ListScans(sessionID string) ([]*model.Scan, error)
	ListGuppiFiles(scanID string) ([]*model.GuppiFile, error)

	// File and copy operations.

	// FindFileByPath returns the file record for directory+filename, or nil.
	FindFileByPath(directory, filename string) (*model.File, error)
	GetFile(id string) (*model.File, error)
	ListFiles() ([]*model.File, error)

	// RecordFileCopy records or matches a copy by (file, host, path) with a
	// freshly computed checksum. A matched copy whose stored checksum
	// differs is flagged corrupt and a ContentMismatchError is returned
	// alongside the copy. The owning file's checksum is filled on first
	// computation and never overwritten.
	RecordFileCopy(fileID, host, path, checksum string) (*model.FileCopy, error)
	ListFileCopies(fileID string) ([]*model.FileCopy, error)

	// Target operations. Matching is by exact, case-sensitive name.

	FindOrCreateTarget(name string) (*model.Target, error)
	// SetTargetCoordinates fills in ra/dec for a named target, for the
	// later pass that reads observing-script files.
	SetTargetCoordinates(name string, ra, dec float64) error

	// Scan set operations. The session is stored on the set itself; a scan
	// from a different session cannot be assigned (ConsistencyError).

	CreateScanSet(sessionID, kind string) (*model.ScanSet, error)
	AssignScanToSet(scanID, scanSetID string) error
	ListScanSetScans(scanSetID string) ([]*model.Scan, error)

	// Operation history.

	CreateIndexOperation(operation, parameters string) (*model.IndexOperation, error)
	FinishIndexOperation(id int64, status string) error
	ListIndexOperations(limit int) ([]*model.IndexOperation, error)

	// Close closes the database connection.
	Close() error
}
