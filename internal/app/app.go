package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gbtim/internal/config"
	"gbtim/internal/copystore"
	"gbtim/internal/database"
	"gbtim/internal/gbtim"
	"gbtim/internal/guppi"
	"gbtim/internal/model"
)

// App is the application layer between the CLI and the Service. It
// constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type App struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	service *gbtim.Service
	op      *Operation
	logFile *os.File
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "index", "verify"); parameters
// records its arguments for the history table. The caller must call Close
// when done.
func NewApp(cfg *config.Config, operation, parameters string) (*App, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	// Opening the index is idempotent: a fresh file gets the schema, an
	// existing one is untouched.
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	ctx := context.Background()
	stores := make([]gbtim.CopyStore, 0, len(cfg.Hosts))
	for _, hc := range cfg.Hosts {
		store, err := copystore.NewStoreFromConfig(ctx, hc)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating copy store %q: %w", hc.Name, err)
		}
		stores = append(stores, store)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	extractor := guppi.NewExtractor(guppi.OpenFITS)
	svc, err := gbtim.NewService(db, extractor, stores, cfg.HostID, &slogAdapter{l: logger})
	if err != nil {
		logFile.Close()
		db.Close()
		return nil, fmt.Errorf("creating service: %w", err)
	}

	return &App{
		cfg:     cfg,
		db:      db,
		service: svc,
		op:      NewOperation(operation, parameters),
		logFile: logFile,
	}, nil
}

// persistOperation saves the operation to the history table, giving it an
// auto-increment ID. This should only be called for index-mutating commands.
func (a *App) persistOperation() error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	dbOp, err := a.db.CreateIndexOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting index operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// FileResult is the outcome of indexing one file. Identity is the derived
// instrument-file identity when indexing succeeded; Err carries a per-file
// failure (corrupt copy, unreadable header) that did not abort the run.
type FileResult struct {
	Path     string
	Identity string
	Err      error
}

// Index walks the given paths and indexes every instrument file found.
// Explicitly named files are indexed as-is; directories are scanned
// recursively and files that do not look like instrument files are skipped.
// full selects full-data extraction instead of header-only.
func (a *App) Index(rawPaths []string, full bool) ([]FileResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	depth := guppi.DepthHeader
	if full {
		depth = guppi.DepthFull
	}

	var results []FileResult
	for _, raw := range rawPaths {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return results, fmt.Errorf("resolving path %s: %w", raw, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return results, fmt.Errorf("stat %s: %w", raw, err)
		}

		if !info.IsDir() {
			results = append(results, a.indexOne(abs, depth))
			continue
		}

		files, err := scanDirectory(abs)
		if err != nil {
			return results, err
		}
		for _, path := range files {
			results = append(results, a.indexOne(path, depth))
		}
	}

	for _, r := range results {
		if r.Err != nil {
			a.op.Status = "error"
			break
		}
	}
	return results, nil
}

func (a *App) indexOne(path string, depth guppi.Depth) FileResult {
	res, err := a.service.IndexFile(path, depth)
	r := FileResult{Path: path, Err: err}
	if res != nil {
		r.Identity = res.Identity()
	}
	return r
}

// scanDirectory collects instrument files under dir, in sorted order.
// Non-matching filenames are skipped, like the stray log and calibration
// files that live alongside GUPPI data.
func scanDirectory(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if guppi.MatchesFilename(filepath.Base(path)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Verify re-hashes the recorded copies of the file at rawPath.
func (a *App) Verify(rawPath string) ([]*gbtim.CopyStatus, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	statuses, err := a.service.VerifyFile(abs)
	a.noteVerifyStatus(statuses)
	return statuses, err
}

// VerifyAll re-hashes every recorded copy of every indexed file.
func (a *App) VerifyAll() ([]*gbtim.CopyStatus, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	statuses, err := a.service.VerifyAll()
	a.noteVerifyStatus(statuses)
	return statuses, err
}

func (a *App) noteVerifyStatus(statuses []*gbtim.CopyStatus) {
	for _, st := range statuses {
		if st.Err != nil {
			a.op.Status = "error"
			return
		}
	}
}

// TreeScan is one scan in the ls report.
type TreeScan struct {
	Identity string
	Mode     string
	Files    int
}

// TreeSession is one session in the ls report.
type TreeSession struct {
	Identity string
	Scans    []TreeScan
}

// TreeAllocation is one allocation in the ls report.
type TreeAllocation struct {
	Name     string
	Sessions []TreeSession
}

// Tree reports the index hierarchy for the ls command. filter narrows the
// report to one allocation ("GBT10B-036") or one session ("GBT10B-036.0005");
// empty means everything.
func (a *App) Tree(filter string) ([]TreeAllocation, error) {
	allocFilter, sessionFilter, bySession, err := parseTreeFilter(filter)
	if err != nil {
		return nil, err
	}

	allocations, err := a.service.ListAllocations()
	if err != nil {
		return nil, err
	}

	var tree []TreeAllocation
	for _, alloc := range allocations {
		name := model.AllocationName(alloc.Term, alloc.Number)
		if allocFilter != "" && name != allocFilter {
			continue
		}
		ta := TreeAllocation{Name: name}

		sessions, err := a.service.ListSessions(alloc)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if bySession && sess.Number != sessionFilter {
				continue
			}
			identity := model.SessionIdentity(name, sess.Number)
			ts := TreeSession{Identity: identity}

			scans, err := a.service.ListScans(sess)
			if err != nil {
				return nil, err
			}
			for _, scan := range scans {
				guppiFiles, err := a.service.ListGuppiFiles(scan)
				if err != nil {
					return nil, err
				}
				ts.Scans = append(ts.Scans, TreeScan{
					Identity: model.ScanIdentity(identity, scan.Number),
					Mode:     scan.Mode,
					Files:    len(guppiFiles),
				})
			}
			ta.Sessions = append(ta.Sessions, ts)
		}
		tree = append(tree, ta)
	}
	return tree, nil
}

// parseTreeFilter splits an ls argument into an allocation name and an
// optional session number. "GBT10B-036" selects one allocation,
// "GBT10B-036.0005" one session within it. Session 0 is a valid selection;
// bySession distinguishes it from no session part at all.
func parseTreeFilter(filter string) (name string, session int, bySession bool, err error) {
	if filter == "" {
		return "", 0, false, nil
	}
	name, rest, found := strings.Cut(filter, ".")
	if _, _, err := model.ParseAllocationName(name); err != nil {
		return "", 0, false, fmt.Errorf("invalid filter %q: %w", filter, err)
	}
	if !found {
		return name, 0, false, nil
	}
	session, err = strconv.Atoi(rest)
	if err != nil || session < 0 {
		return "", 0, false, fmt.Errorf("invalid session number in filter %q", filter)
	}
	return name, session, true, nil
}

// History returns the most recent index operations.
func (a *App) History(limit int) ([]*model.IndexOperation, error) {
	return a.service.History(limit)
}

// CreateScanSet groups scans of a session into a new scan set.
func (a *App) CreateScanSet(sessionIdentity, kind string, scanNumbers []int) (*model.ScanSet, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	set, err := a.service.CreateScanSet(sessionIdentity, kind, scanNumbers)
	if err != nil {
		a.op.Status = "error"
	}
	return set, err
}

// SetTargetCoordinates fills in sky coordinates for a named target.
func (a *App) SetTargetCoordinates(name string, ra, dec float64) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	if err := a.service.SetTargetCoordinates(name, ra, dec); err != nil {
		a.op.Status = "error"
		return err
	}
	return nil
}

// Close finalizes the operation record and closes all resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishIndexOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing index operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// IsContentMismatch reports whether err is a flagged-corrupt copy, which
// the index command treats as a warning rather than an abort.
func IsContentMismatch(err error) bool {
	var m *gbtim.ContentMismatchError
	return errors.As(err, &m)
}
