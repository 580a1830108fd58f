package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"gbtim/internal/database/migrations"
	"gbtim/internal/gbtim"
	"gbtim/internal/guppi"
	"gbtim/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the gbtim.Database interface using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	idgen gbtim.IDGenerator
	clock gbtim.Clock
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
// idgen and clock may be nil, in which case real implementations are used.
func NewSQLiteDatabase(path string, idgen gbtim.IDGenerator, clock gbtim.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteDatabaseFromDB(db, idgen, clock)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, idgen gbtim.IDGenerator, clock gbtim.Clock) *SQLiteDatabase {
	if idgen == nil {
		idgen = gbtim.UUIDGenerator{}
	}
	if clock == nil {
		clock = gbtim.RealClock{}
	}
	return &SQLiteDatabase{db: db, idgen: idgen, clock: clock}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Indexing jobs for different files may share the store; wait for locks
	// instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// Resolution

// ResolveRecord maps an extraction record onto index rows inside a single
// transaction, creating missing ancestors root to leaf. Each level is a
// find-or-create keyed on the level's uniqueness constraint; a concurrent
// resolver losing an insert race falls back to re-reading the row.
func (s *SQLiteDatabase) ResolveRecord(record *guppi.Record) (*gbtim.Resolution, error) {
	if record.Depth < guppi.DepthHeader {
		return nil, fmt.Errorf("cannot resolve a %s-depth record: the hierarchy needs header fields", record.Depth)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res := &gbtim.Resolution{}

	res.Allocation, err = s.resolveAllocation(tx, record)
	if err != nil {
		return nil, &gbtim.AncestorResolutionError{Path: record.Path, Level: "allocation", Err: err}
	}

	res.Session, err = s.resolveSession(tx, res.Allocation.ID, record.SessionNumber)
	if err != nil {
		return nil, &gbtim.AncestorResolutionError{Path: record.Path, Level: "session", Err: err}
	}

	if record.TargetName != "" {
		res.Target, err = s.resolveTarget(tx, record.TargetName)
		if err != nil {
			return nil, &gbtim.AncestorResolutionError{Path: record.Path, Level: "target", Err: err}
		}
	}

	res.Scan, err = s.resolveScan(tx, res, record)
	if err != nil {
		return nil, &gbtim.AncestorResolutionError{Path: record.Path, Level: "scan", Err: err}
	}

	res.File, err = s.resolveFile(tx, record.Path)
	if err != nil {
		return nil, &gbtim.AncestorResolutionError{Path: record.Path, Level: "file", Err: err}
	}

	res.GuppiFile, err = s.resolveGuppiFile(tx, res, record)
	if err != nil {
		return nil, &gbtim.AncestorResolutionError{Path: record.Path, Level: "guppi file", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing resolution: %w", err)
	}
	return res, nil
}

func (s *SQLiteDatabase) resolveAllocation(q querier, record *guppi.Record) (*model.Allocation, error) {
	existing, err := s.findAllocation(q, record.AllocationTerm, record.AllocationNumber)
	if err != nil || existing != nil {
		return existing, err
	}

	a := &model.Allocation{ID: s.idgen.New(), Term: record.AllocationTerm, Number: record.AllocationNumber}
	_, err = q.Exec("INSERT INTO allocations (id, term, number) VALUES (?, ?, ?)", a.ID, a.Term, a.Number)
	if err != nil {
		// A concurrent resolver may have created the row; fall back to find.
		if existing, ferr := s.findAllocation(q, a.Term, a.Number); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("inserting allocation: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) resolveSession(q querier, allocationID string, number int) (*model.Session, error) {
	existing, err := s.findSession(q, allocationID, number)
	if err != nil || existing != nil {
		return existing, err
	}

	sess := &model.Session{ID: s.idgen.New(), AllocationID: allocationID, Number: number}
	_, err = q.Exec("INSERT INTO sessions (id, allocation_id, number) VALUES (?, ?, ?)",
		sess.ID, sess.AllocationID, sess.Number)
	if err != nil {
		if existing, ferr := s.findSession(q, allocationID, number); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteDatabase) resolveTarget(q querier, name string) (*model.Target, error) {
	existing, err := s.findTargetByName(q, name)
	if err != nil || existing != nil {
		return existing, err
	}

	t := &model.Target{ID: s.idgen.New(), Name: name}
	_, err = q.Exec("INSERT INTO targets (id, name) VALUES (?, ?)", t.ID, t.Name)
	if err != nil {
		if existing, ferr := s.findTargetByName(q, name); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("inserting target: %w", err)
	}
	return t, nil
}

// resolveScan finds or creates the scan row and applies the record's
// fill-once fields: a null column may take a value exactly once, and a
// populated column must agree with the record or the whole resolution fails
// with a ConsistencyError.
func (s *SQLiteDatabase) resolveScan(q querier, res *gbtim.Resolution, record *guppi.Record) (*model.Scan, error) {
	scan, err := s.findScan(q, res.Session.ID, record.ScanNumber)
	if err != nil {
		return nil, err
	}

	if scan == nil {
		scan = &model.Scan{
			ID:        s.idgen.New(),
			SessionID: res.Session.ID,
			Number:    record.ScanNumber,
			Mode:      record.Mode,
			Cadence:   record.Cadence,
			RAMin:     record.RAMin,
			RAMax:     record.RAMax,
			DecMin:    record.DecMin,
			DecMax:    record.DecMax,
			AzMin:     record.AzMin,
			AzMax:     record.AzMax,
			ElMin:     record.ElMin,
			ElMax:     record.ElMax,
			StartTime: record.StartTime,
			EndTime:   record.EndTime,
		}
		if res.Target != nil {
			scan.TargetID = &res.Target.ID
		}
		_, err = q.Exec(`INSERT INTO scans
			(id, session_id, number, target_id, mode, cadence,
			 ra_min, ra_max, dec_min, dec_max, az_min, az_max, el_min, el_max,
			 start_time, end_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scan.ID, scan.SessionID, scan.Number, nullString(scan.TargetID), scan.Mode,
			nullFloat(scan.Cadence),
			nullFloat(scan.RAMin), nullFloat(scan.RAMax),
			nullFloat(scan.DecMin), nullFloat(scan.DecMax),
			nullFloat(scan.AzMin), nullFloat(scan.AzMax),
			nullFloat(scan.ElMin), nullFloat(scan.ElMax),
			nullFloat(scan.StartTime), nullFloat(scan.EndTime))
		if err != nil {
			if existing, ferr := s.findScan(q, res.Session.ID, record.ScanNumber); ferr == nil && existing != nil {
				scan = existing
			} else {
				return nil, fmt.Errorf("inserting scan: %w", err)
			}
		} else {
			return scan, nil
		}
	}

	identity := model.ScanIdentity(res.SessionIdentity(), scan.Number)

	if scan.Mode != record.Mode {
		return nil, &gbtim.ConsistencyError{
			Entity: "scan", Identity: identity, Field: "mode",
			Stored: scan.Mode, New: record.Mode,
		}
	}

	if res.Target != nil {
		if scan.TargetID == nil {
			scan.TargetID = &res.Target.ID
		} else if *scan.TargetID != res.Target.ID {
			return nil, &gbtim.ConsistencyError{
				Entity: "scan", Identity: identity, Field: "target",
				Stored: *scan.TargetID, New: res.Target.ID,
			}
		}
	}

	merge := []struct {
		field  string
		stored **float64
		new    *float64
	}{
		{"cadence", &scan.Cadence, record.Cadence},
		{"ra_min", &scan.RAMin, record.RAMin},
		{"ra_max", &scan.RAMax, record.RAMax},
		{"dec_min", &scan.DecMin, record.DecMin},
		{"dec_max", &scan.DecMax, record.DecMax},
		{"az_min", &scan.AzMin, record.AzMin},
		{"az_max", &scan.AzMax, record.AzMax},
		{"el_min", &scan.ElMin, record.ElMin},
		{"el_max", &scan.ElMax, record.ElMax},
		{"start_time", &scan.StartTime, record.StartTime},
		{"end_time", &scan.EndTime, record.EndTime},
	}
	for _, m := range merge {
		if m.new == nil {
			continue
		}
		if *m.stored == nil {
			*m.stored = m.new
			continue
		}
		if **m.stored != *m.new {
			return nil, &gbtim.ConsistencyError{
				Entity: "scan", Identity: identity, Field: m.field,
				Stored: **m.stored, New: *m.new,
			}
		}
	}

	_, err = q.Exec(`UPDATE scans SET target_id = ?, cadence = ?,
		ra_min = ?, ra_max = ?, dec_min = ?, dec_max = ?,
		az_min = ?, az_max = ?, el_min = ?, el_max = ?,
		start_time = ?, end_time = ?
		WHERE id = ?`,
		nullString(scan.TargetID), nullFloat(scan.Cadence),
		nullFloat(scan.RAMin), nullFloat(scan.RAMax),
		nullFloat(scan.DecMin), nullFloat(scan.DecMax),
		nullFloat(scan.AzMin), nullFloat(scan.AzMax),
		nullFloat(scan.ElMin), nullFloat(scan.ElMax),
		nullFloat(scan.StartTime), nullFloat(scan.EndTime),
		scan.ID)
	if err != nil {
		return nil, fmt.Errorf("updating scan: %w", err)
	}

	return scan, nil
}

func (s *SQLiteDatabase) resolveFile(q querier, path string) (*model.File, error) {
	directory, filename := splitPath(path)

	existing, err := s.findFileByPath(q, directory, filename)
	if err != nil || existing != nil {
		return existing, err
	}

	f := &model.File{ID: s.idgen.New(), Filename: filename, Directory: directory}
	_, err = q.Exec("INSERT INTO files (id, filename, directory) VALUES (?, ?, ?)",
		f.ID, f.Filename, f.Directory)
	if err != nil {
		if existing, ferr := s.findFileByPath(q, directory, filename); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("inserting file: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) resolveGuppiFile(q querier, res *gbtim.Resolution, record *guppi.Record) (*model.GuppiFile, error) {
	existing, err := s.findGuppiFile(q, res.Scan.ID, record.FileNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.FileID != res.File.ID {
			return nil, &gbtim.ConsistencyError{
				Entity:   "guppi file",
				Identity: model.GuppiFileIdentity(res.ScanIdentity(), existing.Number),
				Field:    "file",
				Stored:   existing.FileID,
				New:      res.File.ID,
			}
		}
		return existing, nil
	}

	g := &model.GuppiFile{ID: s.idgen.New(), ScanID: res.Scan.ID, FileID: res.File.ID, Number: record.FileNumber}
	_, err = q.Exec("INSERT INTO guppi_files (id, scan_id, file_id, number) VALUES (?, ?, ?, ?)",
		g.ID, g.ScanID, g.FileID, g.Number)
	if err != nil {
		if existing, ferr := s.findGuppiFile(q, res.Scan.ID, record.FileNumber); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("inserting guppi file: %w", err)
	}
	return g, nil
}

// Allocation/session/scan lookups

func (s *SQLiteDatabase) FindAllocation(term string, number int) (*model.Allocation, error) {
	return s.findAllocation(s.db, term, number)
}

func (s *SQLiteDatabase) findAllocation(q querier, term string, number int) (*model.Allocation, error) {
	var a model.Allocation
	err := q.QueryRow("SELECT id, term, number FROM allocations WHERE term = ? AND number = ?",
		term, number).Scan(&a.ID, &a.Term, &a.Number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding allocation: %w", err)
	}
	return &a, nil
}

func (s *SQLiteDatabase) ListAllocations() ([]*model.Allocation, error) {
	rows, err := s.db.Query("SELECT id, term, number FROM allocations ORDER BY term, number")
	if err != nil {
		return nil, fmt.Errorf("listing allocations: %w", err)
	}
	defer rows.Close()

	var result []*model.Allocation
	for rows.Next() {
		var a model.Allocation
		if err := rows.Scan(&a.ID, &a.Term, &a.Number); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindSession(allocationID string, number int) (*model.Session, error) {
	return s.findSession(s.db, allocationID, number)
}

func (s *SQLiteDatabase) findSession(q querier, allocationID string, number int) (*model.Session, error) {
	var sess model.Session
	err := q.QueryRow("SELECT id, allocation_id, number FROM sessions WHERE allocation_id = ? AND number = ?",
		allocationID, number).Scan(&sess.ID, &sess.AllocationID, &sess.Number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteDatabase) ListSessions(allocationID string) ([]*model.Session, error) {
	rows, err := s.db.Query("SELECT id, allocation_id, number FROM sessions WHERE allocation_id = ? ORDER BY number",
		allocationID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var result []*model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.AllocationID, &sess.Number); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, &sess)
	}
	return result, rows.Err()
}

const scanColumns = `id, session_id, number, scan_set_id, target_id, mode, cadence,
	ra_min, ra_max, dec_min, dec_max, az_min, az_max, el_min, el_max, start_time, end_time`

func scanScanRow(row interface{ Scan(...any) error }) (*model.Scan, error) {
	var sc model.Scan
	var scanSetID, targetID sql.NullString
	var cadence, raMin, raMax, decMin, decMax, azMin, azMax, elMin, elMax, startTime, endTime sql.NullFloat64
	err := row.Scan(&sc.ID, &sc.SessionID, &sc.Number, &scanSetID, &targetID, &sc.Mode, &cadence,
		&raMin, &raMax, &decMin, &decMax, &azMin, &azMax, &elMin, &elMax, &startTime, &endTime)
	if err != nil {
		return nil, err
	}
	sc.ScanSetID = stringPtr(scanSetID)
	sc.TargetID = stringPtr(targetID)
	sc.Cadence = floatPtr(cadence)
	sc.RAMin, sc.RAMax = floatPtr(raMin), floatPtr(raMax)
	sc.DecMin, sc.DecMax = floatPtr(decMin), floatPtr(decMax)
	sc.AzMin, sc.AzMax = floatPtr(azMin), floatPtr(azMax)
	sc.ElMin, sc.ElMax = floatPtr(elMin), floatPtr(elMax)
	sc.StartTime, sc.EndTime = floatPtr(startTime), floatPtr(endTime)
	return &sc, nil
}

func (s *SQLiteDatabase) FindScan(sessionID string, number int) (*model.Scan, error) {
	return s.findScan(s.db, sessionID, number)
}

func (s *SQLiteDatabase) findScan(q querier, sessionID string, number int) (*model.Scan, error) {
	row := q.QueryRow("SELECT "+scanColumns+" FROM scans WHERE session_id = ? AND number = ?",
		sessionID, number)
	sc, err := scanScanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding scan: %w", err)
	}
	return sc, nil
}

func (s *SQLiteDatabase) ListScans(sessionID string) ([]*model.Scan, error) {
	return s.listScansWhere("session_id = ?", sessionID)
}

func (s *SQLiteDatabase) ListScanSetScans(scanSetID string) ([]*model.Scan, error) {
	return s.listScansWhere("scan_set_id = ?", scanSetID)
}

func (s *SQLiteDatabase) listScansWhere(where string, arg any) ([]*model.Scan, error) {
	rows, err := s.db.Query("SELECT "+scanColumns+" FROM scans WHERE "+where+" ORDER BY number", arg)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var result []*model.Scan
	for rows.Next() {
		sc, err := scanScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scan: %w", err)
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) ListGuppiFiles(scanID string) ([]*model.GuppiFile, error) {
	rows, err := s.db.Query("SELECT id, scan_id, file_id, number FROM guppi_files WHERE scan_id = ? ORDER BY number",
		scanID)
	if err != nil {
		return nil, fmt.Errorf("listing guppi files: %w", err)
	}
	defer rows.Close()

	var result []*model.GuppiFile
	for rows.Next() {
		var g model.GuppiFile
		if err := rows.Scan(&g.ID, &g.ScanID, &g.FileID, &g.Number); err != nil {
			return nil, fmt.Errorf("scanning guppi file: %w", err)
		}
		result = append(result, &g)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) findGuppiFile(q querier, scanID string, number int) (*model.GuppiFile, error) {
	var g model.GuppiFile
	err := q.QueryRow("SELECT id, scan_id, file_id, number FROM guppi_files WHERE scan_id = ? AND number = ?",
		scanID, number).Scan(&g.ID, &g.ScanID, &g.FileID, &g.Number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding guppi file: %w", err)
	}
	return &g, nil
}

// File and copy operations

func (s *SQLiteDatabase) FindFileByPath(directory, filename string) (*model.File, error) {
	return s.findFileByPath(s.db, directory, filename)
}

func (s *SQLiteDatabase) findFileByPath(q querier, directory, filename string) (*model.File, error) {
	var f model.File
	var checksum sql.NullString
	err := q.QueryRow("SELECT id, filename, directory, checksum FROM files WHERE directory = ? AND filename = ?",
		directory, filename).Scan(&f.ID, &f.Filename, &f.Directory, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	f.Checksum = stringPtr(checksum)
	return &f, nil
}

func (s *SQLiteDatabase) GetFile(id string) (*model.File, error) {
	return s.getFile(s.db, id)
}

func (s *SQLiteDatabase) getFile(q querier, id string) (*model.File, error) {
	var f model.File
	var checksum sql.NullString
	err := q.QueryRow("SELECT id, filename, directory, checksum FROM files WHERE id = ?",
		id).Scan(&f.ID, &f.Filename, &f.Directory, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}
	f.Checksum = stringPtr(checksum)
	return &f, nil
}

func (s *SQLiteDatabase) ListFiles() ([]*model.File, error) {
	rows, err := s.db.Query("SELECT id, filename, directory, checksum FROM files ORDER BY directory, filename")
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		var f model.File
		var checksum sql.NullString
		if err := rows.Scan(&f.ID, &f.Filename, &f.Directory, &checksum); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		f.Checksum = stringPtr(checksum)
		result = append(result, &f)
	}
	return result, rows.Err()
}

// RecordFileCopy records or matches a copy of a file's bytes in a single
// transaction. The reference hash is the copy's previously stored checksum,
// or the file's checksum for a copy seen for the first time; a differing
// computed checksum flags the copy corrupt and returns a
// ContentMismatchError after committing the flag. Stored checksums are
// never overwritten.
func (s *SQLiteDatabase) RecordFileCopy(fileID, host, path, checksum string) (*model.FileCopy, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	file, err := s.getFile(tx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("no such file: %s", fileID)
	}

	c, err := s.findFileCopy(tx, fileID, host, path)
	if err != nil {
		return nil, err
	}

	recorded := ""
	if c != nil && c.Checksum != nil {
		recorded = *c.Checksum
	} else if file.Checksum != nil {
		recorded = *file.Checksum
	}

	if recorded != "" && recorded != checksum {
		if c == nil {
			c = &model.FileCopy{
				ID: s.idgen.New(), FileID: fileID, Host: host, Path: path,
				Checksum: &checksum, Corrupt: true,
			}
			_, err = tx.Exec("INSERT INTO file_copies (id, file_id, host, path, checksum, corrupt) VALUES (?, ?, ?, ?, ?, 1)",
				c.ID, c.FileID, c.Host, c.Path, checksum)
		} else {
			c.Corrupt = true
			_, err = tx.Exec("UPDATE file_copies SET corrupt = 1 WHERE id = ?", c.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("flagging corrupt copy: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing corrupt flag: %w", err)
		}
		return c, &gbtim.ContentMismatchError{Host: host, Path: path, Recorded: recorded, Computed: checksum}
	}

	if c == nil {
		c = &model.FileCopy{ID: s.idgen.New(), FileID: fileID, Host: host, Path: path, Checksum: &checksum}
		_, err = tx.Exec("INSERT INTO file_copies (id, file_id, host, path, checksum, corrupt) VALUES (?, ?, ?, ?, ?, 0)",
			c.ID, c.FileID, c.Host, c.Path, checksum)
		if err != nil {
			return nil, fmt.Errorf("inserting file copy: %w", err)
		}
	} else if c.Checksum == nil {
		c.Checksum = &checksum
		if _, err := tx.Exec("UPDATE file_copies SET checksum = ? WHERE id = ?", checksum, c.ID); err != nil {
			return nil, fmt.Errorf("updating file copy checksum: %w", err)
		}
	}

	// First computed hash for this file fills the file-level checksum.
	if file.Checksum == nil {
		if _, err := tx.Exec("UPDATE files SET checksum = ? WHERE id = ?", checksum, file.ID); err != nil {
			return nil, fmt.Errorf("updating file checksum: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing file copy: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) findFileCopy(q querier, fileID, host, path string) (*model.FileCopy, error) {
	var c model.FileCopy
	var checksum sql.NullString
	err := q.QueryRow("SELECT id, file_id, host, path, checksum, corrupt FROM file_copies WHERE file_id = ? AND host = ? AND path = ?",
		fileID, host, path).Scan(&c.ID, &c.FileID, &c.Host, &c.Path, &checksum, &c.Corrupt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding file copy: %w", err)
	}
	c.Checksum = stringPtr(checksum)
	return &c, nil
}

func (s *SQLiteDatabase) ListFileCopies(fileID string) ([]*model.FileCopy, error) {
	rows, err := s.db.Query("SELECT id, file_id, host, path, checksum, corrupt FROM file_copies WHERE file_id = ? ORDER BY host, path",
		fileID)
	if err != nil {
		return nil, fmt.Errorf("listing file copies: %w", err)
	}
	defer rows.Close()

	var result []*model.FileCopy
	for rows.Next() {
		var c model.FileCopy
		var checksum sql.NullString
		if err := rows.Scan(&c.ID, &c.FileID, &c.Host, &c.Path, &checksum, &c.Corrupt); err != nil {
			return nil, fmt.Errorf("scanning file copy: %w", err)
		}
		c.Checksum = stringPtr(checksum)
		result = append(result, &c)
	}
	return result, rows.Err()
}

// Target operations

func (s *SQLiteDatabase) FindOrCreateTarget(name string) (*model.Target, error) {
	return s.resolveTarget(s.db, name)
}

func (s *SQLiteDatabase) findTargetByName(q querier, name string) (*model.Target, error) {
	var t model.Target
	var ra, dec sql.NullFloat64
	err := q.QueryRow("SELECT id, name, ra, dec FROM targets WHERE name = ?", name).
		Scan(&t.ID, &t.Name, &ra, &dec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding target: %w", err)
	}
	t.RA = floatPtr(ra)
	t.Dec = floatPtr(dec)
	return &t, nil
}

func (s *SQLiteDatabase) SetTargetCoordinates(name string, ra, dec float64) error {
	res, err := s.db.Exec("UPDATE targets SET ra = ?, dec = ? WHERE name = ?", ra, dec, name)
	if err != nil {
		return fmt.Errorf("setting target coordinates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting target coordinates: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no such target: %s", name)
	}
	return nil
}

// Scan set operations

func (s *SQLiteDatabase) CreateScanSet(sessionID, kind string) (*model.ScanSet, error) {
	set := &model.ScanSet{ID: s.idgen.New(), SessionID: sessionID, Kind: kind}
	_, err := s.db.Exec("INSERT INTO scan_sets (id, session_id, kind) VALUES (?, ?, ?)",
		set.ID, set.SessionID, set.Kind)
	if err != nil {
		return nil, fmt.Errorf("inserting scan set: %w", err)
	}
	return set, nil
}

// AssignScanToSet links a scan to a scan set. The scan must belong to the
// set's session, and a scan already in a different set stays there; both
// violations are ConsistencyErrors.
func (s *SQLiteDatabase) AssignScanToSet(scanID, scanSetID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow("SELECT "+scanColumns+" FROM scans WHERE id = ?", scanID)
	scan, err := scanScanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no such scan: %s", scanID)
	}
	if err != nil {
		return fmt.Errorf("loading scan: %w", err)
	}

	var set model.ScanSet
	err = tx.QueryRow("SELECT id, session_id, kind FROM scan_sets WHERE id = ?", scanSetID).
		Scan(&set.ID, &set.SessionID, &set.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no such scan set: %s", scanSetID)
	}
	if err != nil {
		return fmt.Errorf("loading scan set: %w", err)
	}

	if scan.SessionID != set.SessionID {
		return &gbtim.ConsistencyError{
			Entity: "scan set", Identity: set.ID, Field: "session",
			Stored: set.SessionID, New: scan.SessionID,
		}
	}
	if scan.ScanSetID != nil && *scan.ScanSetID != set.ID {
		return &gbtim.ConsistencyError{
			Entity: "scan", Identity: scan.ID, Field: "scan_set",
			Stored: *scan.ScanSetID, New: set.ID,
		}
	}

	if _, err := tx.Exec("UPDATE scans SET scan_set_id = ? WHERE id = ?", set.ID, scan.ID); err != nil {
		return fmt.Errorf("assigning scan to set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing assignment: %w", err)
	}
	return nil
}

// Operation history

func (s *SQLiteDatabase) CreateIndexOperation(operation, parameters string) (*model.IndexOperation, error) {
	startedAt := float64(s.clock.Now().UnixMilli()) / 1000
	res, err := s.db.Exec("INSERT INTO index_operations (started_at, operation, parameters, status) VALUES (?, ?, ?, 'running')",
		startedAt, operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("creating index operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating index operation: %w", err)
	}
	return &model.IndexOperation{
		ID: id, StartedAt: startedAt, Operation: operation, Parameters: parameters, Status: "running",
	}, nil
}

func (s *SQLiteDatabase) FinishIndexOperation(id int64, status string) error {
	finishedAt := float64(s.clock.Now().UnixMilli()) / 1000
	_, err := s.db.Exec("UPDATE index_operations SET finished_at = ?, status = ? WHERE id = ?",
		finishedAt, status, id)
	if err != nil {
		return fmt.Errorf("finishing index operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListIndexOperations(limit int) ([]*model.IndexOperation, error) {
	rows, err := s.db.Query("SELECT id, started_at, finished_at, operation, parameters, status FROM index_operations ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing index operations: %w", err)
	}
	defer rows.Close()

	var result []*model.IndexOperation
	for rows.Next() {
		var op model.IndexOperation
		var finishedAt sql.NullFloat64
		if err := rows.Scan(&op.ID, &op.StartedAt, &finishedAt, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning index operation: %w", err)
		}
		op.FinishedAt = floatPtr(finishedAt)
		result = append(result, &op)
	}
	return result, rows.Err()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// MigrateUp brings the schema to the latest version, creating tables on
// first open without touching existing rows.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// splitPath splits an absolute file path into the directory and filename
// columns used by the files table.
func splitPath(path string) (directory, filename string) {
	directory, filename = filepath.Split(path)
	return filepath.Clean(directory), filename
}

// Null conversion helpers between model pointer fields and database/sql.

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

// Compile-time check that SQLiteDatabase implements gbtim.Database interface
var _ gbtim.Database = (*SQLiteDatabase)(nil)
