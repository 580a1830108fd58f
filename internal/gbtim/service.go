package gbtim

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gbtim/internal/guppi"
	"gbtim/internal/model"
)

// Service is the orchestration layer that coordinates extraction, hierarchy
// resolution and copy bookkeeping for the CLI.
type Service struct {
	database  Database
	extractor *guppi.Extractor
	stores    map[string]CopyStore
	localHost string
	logger    Logger
}

// NewService creates a Service. stores holds one CopyStore per configured
// host; localHost names the store that raw files being indexed are read
// from, and must be present in stores.
func NewService(database Database, extractor *guppi.Extractor, stores []CopyStore, localHost string, logger Logger) (*Service, error) {
	byHost := make(map[string]CopyStore, len(stores))
	for _, st := range stores {
		if _, dup := byHost[st.Host()]; dup {
			return nil, fmt.Errorf("duplicate copy store for host %q", st.Host())
		}
		byHost[st.Host()] = st
	}
	if _, ok := byHost[localHost]; !ok {
		return nil, fmt.Errorf("no copy store configured for local host %q", localHost)
	}
	return &Service{
		database:  database,
		extractor: extractor,
		stores:    byHost,
		localHost: localHost,
		logger:    logger,
	}, nil
}

// IndexFile extracts metadata from the raw file at path, resolves it onto
// the index hierarchy, and records the local copy with its content hash.
//
// A ContentMismatchError is non-fatal: the returned Resolution is still
// valid and committed, the offending copy has been flagged corrupt, and the
// error is surfaced so the caller can report it.
func (s *Service) IndexFile(path string, depth guppi.Depth) (*Resolution, error) {
	if depth < guppi.DepthHeader {
		return nil, fmt.Errorf("indexing requires header extraction or deeper, got depth %s", depth)
	}

	record, err := s.extractor.Extract(path, depth)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("extracted metadata", "path", path, "depth", depth.String())

	resolution, err := s.database.ResolveRecord(record)
	if err != nil {
		return nil, err
	}
	s.logger.Info("file resolved", "identity", resolution.Identity(), "path", path)

	// Hash the bytes and attach the local copy. Hashing happens outside any
	// store transaction: the read can be slow and must not starve
	// concurrent resolvers.
	checksum, size, err := s.hashCopy(s.stores[s.localHost], path)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("content hashed", "path", path, "checksum", checksum, "size", size)

	_, err = s.database.RecordFileCopy(resolution.File.ID, s.localHost, path, checksum)
	var mismatch *ContentMismatchError
	if errors.As(err, &mismatch) {
		s.logger.Warn("copy flagged corrupt", "host", mismatch.Host, "path", mismatch.Path)
		return resolution, err
	}
	if err != nil {
		return nil, fmt.Errorf("recording file copy: %w", err)
	}

	return resolution, nil
}

// CopyStatus is the verification outcome for one recorded file copy.
// Err is nil for a healthy copy, a ContentMismatchError for a corrupt one,
// and some other error when the copy could not be checked at all.
type CopyStatus struct {
	Copy *model.FileCopy
	Err  error
}

// VerifyFile re-hashes every recorded copy of the file at path and flags
// corruption. The path identifies the File row by directory+filename.
func (s *Service) VerifyFile(path string) ([]*CopyStatus, error) {
	directory, filename := filepath.Split(path)
	file, err := s.database.FindFileByPath(filepath.Clean(directory), filename)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("file is not indexed: %s", path)
	}
	return s.verifyCopies(file)
}

// VerifyAll re-hashes every recorded copy of every indexed file.
func (s *Service) VerifyAll() ([]*CopyStatus, error) {
	files, err := s.database.ListFiles()
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	var statuses []*CopyStatus
	for _, file := range files {
		st, err := s.verifyCopies(file)
		if err != nil {
			return statuses, err
		}
		statuses = append(statuses, st...)
	}
	return statuses, nil
}

func (s *Service) verifyCopies(file *model.File) ([]*CopyStatus, error) {
	copies, err := s.database.ListFileCopies(file.ID)
	if err != nil {
		return nil, fmt.Errorf("listing copies: %w", err)
	}

	var statuses []*CopyStatus
	for _, c := range copies {
		store, ok := s.stores[c.Host]
		if !ok {
			statuses = append(statuses, &CopyStatus{
				Copy: c,
				Err:  fmt.Errorf("no copy store configured for host %q", c.Host),
			})
			continue
		}

		checksum, _, err := s.hashCopy(store, c.Path)
		if err != nil {
			statuses = append(statuses, &CopyStatus{Copy: c, Err: err})
			continue
		}

		updated, err := s.database.RecordFileCopy(file.ID, c.Host, c.Path, checksum)
		var mismatch *ContentMismatchError
		if errors.As(err, &mismatch) {
			s.logger.Warn("copy flagged corrupt", "host", c.Host, "path", c.Path)
			statuses = append(statuses, &CopyStatus{Copy: updated, Err: mismatch})
			continue
		}
		if err != nil {
			return statuses, fmt.Errorf("recording copy check: %w", err)
		}
		statuses = append(statuses, &CopyStatus{Copy: updated})
	}
	return statuses, nil
}

// hashCopy streams the copy's bytes through the content hash. No store
// transaction is held while reading.
func (s *Service) hashCopy(store CopyStore, path string) (string, int64, error) {
	r, err := store.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening copy %s:%s: %w", store.Host(), path, err)
	}
	defer r.Close()

	checksum, size, err := Checksum(r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing copy %s:%s: %w", store.Host(), path, err)
	}
	return checksum, size, nil
}

// CreateScanSet groups the named scans of a session into a new scan set.
// sessionIdentity is a derived label like "GBT10B-036.0005". Every scan
// must already exist and belong to that session.
func (s *Service) CreateScanSet(sessionIdentity, kind string, scanNumbers []int) (*model.ScanSet, error) {
	session, err := s.lookupSession(sessionIdentity)
	if err != nil {
		return nil, err
	}

	set, err := s.database.CreateScanSet(session.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("creating scan set: %w", err)
	}

	for _, number := range scanNumbers {
		scan, err := s.database.FindScan(session.ID, number)
		if err != nil {
			return nil, fmt.Errorf("finding scan %d: %w", number, err)
		}
		if scan == nil {
			return nil, fmt.Errorf("no scan %d in session %s", number, sessionIdentity)
		}
		if err := s.database.AssignScanToSet(scan.ID, set.ID); err != nil {
			return nil, fmt.Errorf("assigning scan %d: %w", number, err)
		}
	}

	s.logger.Info("scan set created", "session", sessionIdentity, "kind", kind, "scans", len(scanNumbers))
	return set, nil
}

// SetTargetCoordinates fills in sky coordinates for a named target.
func (s *Service) SetTargetCoordinates(name string, ra, dec float64) error {
	if err := s.database.SetTargetCoordinates(name, ra, dec); err != nil {
		return fmt.Errorf("setting target coordinates: %w", err)
	}
	s.logger.Info("target coordinates set", "target", name, "ra", ra, "dec", dec)
	return nil
}

// History returns the most recent index operations, newest first.
func (s *Service) History(limit int) ([]*model.IndexOperation, error) {
	return s.database.ListIndexOperations(limit)
}

// ListAllocations returns every allocation in the index.
func (s *Service) ListAllocations() ([]*model.Allocation, error) {
	return s.database.ListAllocations()
}

// ListSessions returns the sessions of an allocation.
func (s *Service) ListSessions(allocation *model.Allocation) ([]*model.Session, error) {
	return s.database.ListSessions(allocation.ID)
}

// ListScans returns the scans of a session.
func (s *Service) ListScans(session *model.Session) ([]*model.Scan, error) {
	return s.database.ListScans(session.ID)
}

// ListGuppiFiles returns the instrument files of a scan.
func (s *Service) ListGuppiFiles(scan *model.Scan) ([]*model.GuppiFile, error) {
	return s.database.ListGuppiFiles(scan.ID)
}

// FindAllocation looks up an allocation by its derived name, e.g. "GBT10B-036".
func (s *Service) FindAllocation(name string) (*model.Allocation, error) {
	term, number, err := model.ParseAllocationName(name)
	if err != nil {
		return nil, err
	}
	return s.database.FindAllocation(term, number)
}

// lookupSession resolves a derived session label like "GBT10B-036.0005".
func (s *Service) lookupSession(identity string) (*model.Session, error) {
	i := strings.LastIndex(identity, ".")
	if i < 0 {
		return nil, fmt.Errorf("malformed session identity: %q", identity)
	}
	number, err := strconv.Atoi(identity[i+1:])
	if err != nil {
		return nil, fmt.Errorf("malformed session number in %q: %w", identity, err)
	}

	allocation, err := s.FindAllocation(identity[:i])
	if err != nil {
		return nil, err
	}
	if allocation == nil {
		return nil, fmt.Errorf("unknown allocation in %q", identity)
	}

	session, err := s.database.FindSession(allocation.ID, number)
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("unknown session %q", identity)
	}
	return session, nil
}
