package gbtim

import "fmt"

// AncestorResolutionError reports a failure while resolving the hierarchy
// for an extraction record. The operation runs in one transaction, so
// nothing has been committed when this is returned.
type AncestorResolutionError struct {
	Path  string // file being indexed
	Level string // hierarchy level that failed, e.g. "session"
	Err   error
}

func (e *AncestorResolutionError) Error() string {
	return fmt.Sprintf("resolving %s for %s: %v", e.Level, e.Path, e.Err)
}

func (e *AncestorResolutionError) Unwrap() error { return e.Err }

// ContentMismatchError reports a file copy whose freshly computed checksum
// disagrees with the previously recorded one. The copy has been flagged
// corrupt; the recorded checksum is never overwritten.
type ContentMismatchError struct {
	Host     string
	Path     string
	Recorded string
	Computed string
}

func (e *ContentMismatchError) Error() string {
	return fmt.Sprintf("content mismatch for %s:%s: recorded %s, computed %s",
		e.Host, e.Path, e.Recorded, e.Computed)
}

// ConsistencyError reports data that violates an index invariant, such as a
// second full-data pass producing different values for an already-populated
// scan field, or a scan being attached to a scan set from another session.
// The conflicting value is reported, never silently written.
type ConsistencyError struct {
	Entity   string // e.g. "scan"
	Identity string // derived identity of the row involved
	Field    string
	Stored   any
	New      any
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency error on %s %s: %s is %v, refusing to overwrite with %v",
		e.Entity, e.Identity, e.Field, e.Stored, e.New)
}
