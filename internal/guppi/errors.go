package guppi

import "fmt"

// MalformedFilenameError reports a filename that does not match the
// instrument data naming pattern.
type MalformedFilenameError struct {
	Filename string
}

func (e *MalformedFilenameError) Error() string {
	return fmt.Sprintf("malformed instrument filename %q: want %s", e.Filename, filenameForm)
}

// MalformedProjectIDError reports a PROJID header field that does not match
// the project-id pattern.
type MalformedProjectIDError struct {
	Path      string
	ProjectID string
}

func (e *MalformedProjectIDError) Error() string {
	return fmt.Sprintf("malformed project id %q in %s: want %s", e.ProjectID, e.Path, projectIDForm)
}

// UnreadableHeaderError reports a file whose primary header could not be
// opened or is missing expected keys.
type UnreadableHeaderError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnreadableHeaderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unreadable header in %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("unreadable header in %s: %s", e.Path, e.Reason)
}

func (e *UnreadableHeaderError) Unwrap() error { return e.Err }

// UnreadableDataError reports a file whose sample table could not be read or
// is missing required columns.
type UnreadableDataError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnreadableDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unreadable sample data in %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("unreadable sample data in %s: %s", e.Path, e.Reason)
}

func (e *UnreadableDataError) Unwrap() error { return e.Err }
