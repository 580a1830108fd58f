package database_test

import (
	"errors"
	"testing"

	"gbtim/internal/gbtim"
	"gbtim/internal/guppi"
	"gbtim/internal/testutil"
)

func fptr(v float64) *float64 { return &v }

// headerRecord is a header-depth record for scan 12, file 1 of session
// GBT10B-036.0005.
func headerRecord(path string, scanNumber, fileNumber int) *guppi.Record {
	return &guppi.Record{
		Path:             path,
		Depth:            guppi.DepthHeader,
		ScanNumber:       scanNumber,
		FileNumber:       fileNumber,
		Mode:             "RALONGMAP",
		AllocationTerm:   "10B",
		AllocationNumber: 36,
		SessionNumber:    5,
		TargetName:       "wigglez1hr_centre",
	}
}

func fullRecord(path string, scanNumber, fileNumber int) *guppi.Record {
	rec := headerRecord(path, scanNumber, fileNumber)
	rec.Depth = guppi.DepthFull
	rec.Cadence = fptr(0.001024)
	rec.StartTime = fptr(1577836800)
	rec.EndTime = fptr(1577836803)
	rec.RAMin, rec.RAMax = fptr(15), fptr(16)
	rec.DecMin, rec.DecMax = fptr(-1), fptr(0)
	rec.AzMin, rec.AzMax = fptr(120), fptr(122)
	rec.ElMin, rec.ElMax = fptr(10), fptr(80)
	return rec
}

func TestResolveRecord_CreatesHierarchy(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	res, err := db.ResolveRecord(headerRecord("/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", 12, 1))
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}

	if res.Allocation == nil || res.Session == nil || res.Scan == nil || res.File == nil || res.GuppiFile == nil {
		t.Fatal("resolution has nil levels")
	}
	if got := res.Identity(); got != "GBT10B-036.0005.0012.0001" {
		t.Errorf("Identity() = %q, want GBT10B-036.0005.0012.0001", got)
	}
	if res.Target == nil || res.Target.Name != "wigglez1hr_centre" {
		t.Errorf("Target = %+v, want wigglez1hr_centre", res.Target)
	}
	if res.Scan.TargetID == nil || *res.Scan.TargetID != res.Target.ID {
		t.Error("scan is not linked to the record's target")
	}
	if res.File.Directory != "/data" || res.File.Filename != "guppi_55562_wigglez1hr_centre_0012_0001.fits" {
		t.Errorf("File = %q / %q, wrong directory split", res.File.Directory, res.File.Filename)
	}
	if res.Scan.StartTime != nil {
		t.Error("header-depth record should leave timing fields null")
	}
}

func TestResolveRecord_Idempotent(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	rec := fullRecord("/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", 12, 1)

	first, err := db.ResolveRecord(rec)
	if err != nil {
		t.Fatalf("first ResolveRecord() failed: %v", err)
	}
	second, err := db.ResolveRecord(rec)
	if err != nil {
		t.Fatalf("second ResolveRecord() failed: %v", err)
	}

	if first.Allocation.ID != second.Allocation.ID ||
		first.Session.ID != second.Session.ID ||
		first.Scan.ID != second.Scan.ID ||
		first.File.ID != second.File.ID ||
		first.GuppiFile.ID != second.GuppiFile.ID {
		t.Error("re-resolving the same record created new rows")
	}
}

func TestResolveRecord_TwoFilesOneScan(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	first, err := db.ResolveRecord(headerRecord("/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", 12, 1))
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}
	second, err := db.ResolveRecord(headerRecord("/data/guppi_55562_wigglez1hr_centre_0012_0002.fits", 12, 2))
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}

	if first.Scan.ID != second.Scan.ID {
		t.Error("files of the same scan resolved to different scans")
	}
	if first.File.ID == second.File.ID {
		t.Error("distinct files resolved to the same file row")
	}

	guppiFiles, err := db.ListGuppiFiles(first.Scan.ID)
	if err != nil {
		t.Fatalf("ListGuppiFiles() failed: %v", err)
	}
	if len(guppiFiles) != 2 {
		t.Errorf("guppi file count = %d, want 2", len(guppiFiles))
	}
}

func TestResolveRecord_RejectsFilenameDepth(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	rec := &guppi.Record{
		Path:       "/data/guppi_55562_wigglez1hr_centre_0012_0001.fits",
		Depth:      guppi.DepthFilename,
		ScanNumber: 12,
		FileNumber: 1,
	}
	if _, err := db.ResolveRecord(rec); err == nil {
		t.Error("ResolveRecord() accepted a filename-depth record")
	}
}

func TestResolveRecord_FillOnce(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	path := "/data/guppi_55562_wigglez1hr_centre_0012_0001.fits"

	// Header pass leaves timing null; full pass fills it.
	if _, err := db.ResolveRecord(headerRecord(path, 12, 1)); err != nil {
		t.Fatalf("header ResolveRecord() failed: %v", err)
	}
	res, err := db.ResolveRecord(fullRecord(path, 12, 1))
	if err != nil {
		t.Fatalf("full ResolveRecord() failed: %v", err)
	}
	if res.Scan.StartTime == nil || *res.Scan.StartTime != 1577836800 {
		t.Fatalf("StartTime = %v, want 1577836800", res.Scan.StartTime)
	}

	// Re-running with identical values is fine.
	if _, err := db.ResolveRecord(fullRecord(path, 12, 1)); err != nil {
		t.Fatalf("identical full ResolveRecord() failed: %v", err)
	}

	// A differing value for a populated field is refused.
	bad := fullRecord(path, 12, 1)
	bad.StartTime = fptr(1577836999)
	_, err = db.ResolveRecord(bad)
	var consistency *gbtim.ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("ResolveRecord() error = %v, want ConsistencyError", err)
	}
	if consistency.Field != "start_time" {
		t.Errorf("ConsistencyError field = %q, want start_time", consistency.Field)
	}

	// The stored value survives the refused write.
	scan, err := db.FindScan(res.Session.ID, 12)
	if err != nil {
		t.Fatalf("FindScan() failed: %v", err)
	}
	if scan.StartTime == nil || *scan.StartTime != 1577836800 {
		t.Errorf("stored StartTime = %v, want 1577836800 untouched", scan.StartTime)
	}
}

func TestResolveRecord_ModeConflict(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	path := "/data/guppi_55562_wigglez1hr_centre_0012_0001.fits"

	if _, err := db.ResolveRecord(headerRecord(path, 12, 1)); err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}

	bad := headerRecord(path, 12, 1)
	bad.Mode = "CAL"
	_, err := db.ResolveRecord(bad)
	var consistency *gbtim.ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("ResolveRecord() error = %v, want ConsistencyError", err)
	}
	if consistency.Field != "mode" {
		t.Errorf("ConsistencyError field = %q, want mode", consistency.Field)
	}
}

func TestRecordFileCopy_FillsChecksums(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	res, err := db.ResolveRecord(headerRecord("/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", 12, 1))
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}

	sum := testutil.SHA256Hex([]byte("raw instrument bytes"))
	c, err := db.RecordFileCopy(res.File.ID, "gbt-archive", "/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", sum)
	if err != nil {
		t.Fatalf("RecordFileCopy() failed: %v", err)
	}
	if c.Checksum == nil || *c.Checksum != sum {
		t.Errorf("copy checksum = %v, want %s", c.Checksum, sum)
	}
	if c.Corrupt {
		t.Error("fresh copy flagged corrupt")
	}

	file, err := db.GetFile(res.File.ID)
	if err != nil {
		t.Fatalf("GetFile() failed: %v", err)
	}
	if file.Checksum == nil || *file.Checksum != sum {
		t.Errorf("file checksum = %v, want %s (filled on first hash)", file.Checksum, sum)
	}
}

func TestRecordFileCopy_SecondHostMatches(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	res, err := db.ResolveRecord(headerRecord("/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", 12, 1))
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}

	sum := testutil.SHA256Hex([]byte("raw instrument bytes"))
	if _, err := db.RecordFileCopy(res.File.ID, "gbt-archive", "/data/a.fits", sum); err != nil {
		t.Fatalf("first RecordFileCopy() failed: %v", err)
	}
	if _, err := db.RecordFileCopy(res.File.ID, "offsite", "/backup/a.fits", sum); err != nil {
		t.Fatalf("second RecordFileCopy() failed: %v", err)
	}

	copies, err := db.ListFileCopies(res.File.ID)
	if err != nil {
		t.Fatalf("ListFileCopies() failed: %v", err)
	}
	if len(copies) != 2 {
		t.Errorf("copy count = %d, want 2", len(copies))
	}
}

func TestRecordFileCopy_MismatchFlagsCorrupt(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	res, err := db.ResolveRecord(headerRecord("/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", 12, 1))
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}

	good := testutil.SHA256Hex([]byte("raw instrument bytes"))
	bad := testutil.SHA256Hex([]byte("bit-rotted bytes"))

	if _, err := db.RecordFileCopy(res.File.ID, "gbt-archive", "/data/a.fits", good); err != nil {
		t.Fatalf("RecordFileCopy() failed: %v", err)
	}

	c, err := db.RecordFileCopy(res.File.ID, "offsite", "/backup/a.fits", bad)
	var mismatch *gbtim.ContentMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("RecordFileCopy() error = %v, want ContentMismatchError", err)
	}
	if mismatch.Recorded != good || mismatch.Computed != bad {
		t.Errorf("mismatch = recorded %s computed %s, want %s / %s",
			mismatch.Recorded, mismatch.Computed, good, bad)
	}
	if c == nil || !c.Corrupt {
		t.Error("mismatching copy was not flagged corrupt")
	}

	// The corrupt flag is committed even though an error was returned.
	copies, err := db.ListFileCopies(res.File.ID)
	if err != nil {
		t.Fatalf("ListFileCopies() failed: %v", err)
	}
	corrupt := 0
	for _, stored := range copies {
		if stored.Corrupt {
			corrupt++
		}
	}
	if corrupt != 1 {
		t.Errorf("corrupt copy count = %d, want 1", corrupt)
	}

	// The file-level reference checksum is never overwritten.
	file, err := db.GetFile(res.File.ID)
	if err != nil {
		t.Fatalf("GetFile() failed: %v", err)
	}
	if file.Checksum == nil || *file.Checksum != good {
		t.Errorf("file checksum = %v, want original %s", file.Checksum, good)
	}
}

func TestRecordFileCopy_ExistingCopyMismatch(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	res, err := db.ResolveRecord(headerRecord("/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", 12, 1))
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}

	good := testutil.SHA256Hex([]byte("raw instrument bytes"))
	bad := testutil.SHA256Hex([]byte("bit-rotted bytes"))

	if _, err := db.RecordFileCopy(res.File.ID, "gbt-archive", "/data/a.fits", good); err != nil {
		t.Fatalf("RecordFileCopy() failed: %v", err)
	}

	// Re-verifying the same copy with different bytes flags it but keeps the
	// stored checksum.
	c, err := db.RecordFileCopy(res.File.ID, "gbt-archive", "/data/a.fits", bad)
	var mismatch *gbtim.ContentMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("RecordFileCopy() error = %v, want ContentMismatchError", err)
	}
	if !c.Corrupt {
		t.Error("copy was not flagged corrupt")
	}
	if c.Checksum == nil || *c.Checksum != good {
		t.Errorf("copy checksum = %v, want original %s preserved", c.Checksum, good)
	}
}

func TestAssignScanToSet_SessionMismatch(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	a, err := db.ResolveRecord(headerRecord("/data/guppi_55562_wigglez1hr_centre_0012_0001.fits", 12, 1))
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}
	other := headerRecord("/data/guppi_55563_wigglez1hr_centre_0003_0001.fits", 3, 1)
	other.SessionNumber = 6
	b, err := db.ResolveRecord(other)
	if err != nil {
		t.Fatalf("ResolveRecord() failed: %v", err)
	}

	set, err := db.CreateScanSet(a.Session.ID, "ralongmap")
	if err != nil {
		t.Fatalf("CreateScanSet() failed: %v", err)
	}

	if err := db.AssignScanToSet(a.Scan.ID, set.ID); err != nil {
		t.Fatalf("AssignScanToSet() same session failed: %v", err)
	}

	err = db.AssignScanToSet(b.Scan.ID, set.ID)
	var consistency *gbtim.ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("AssignScanToSet() cross-session error = %v, want ConsistencyError", err)
	}

	scans, err := db.ListScanSetScans(set.ID)
	if err != nil {
		t.Fatalf("ListScanSetScans() failed: %v", err)
	}
	if len(scans) != 1 || scans[0].ID != a.Scan.ID {
		t.Errorf("scan set scans = %d, want only the same-session scan", len(scans))
	}
}

func TestTargets(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	first, err := db.FindOrCreateTarget("wigglez1hr_centre")
	if err != nil {
		t.Fatalf("FindOrCreateTarget() failed: %v", err)
	}
	second, err := db.FindOrCreateTarget("wigglez1hr_centre")
	if err != nil {
		t.Fatalf("FindOrCreateTarget() failed: %v", err)
	}
	if first.ID != second.ID {
		t.Error("same target name created two rows")
	}

	if err := db.SetTargetCoordinates("wigglez1hr_centre", 15.5, -0.5); err != nil {
		t.Fatalf("SetTargetCoordinates() failed: %v", err)
	}
	updated, err := db.FindOrCreateTarget("wigglez1hr_centre")
	if err != nil {
		t.Fatalf("FindOrCreateTarget() failed: %v", err)
	}
	if updated.RA == nil || *updated.RA != 15.5 || updated.Dec == nil || *updated.Dec != -0.5 {
		t.Errorf("target coordinates = %v/%v, want 15.5/-0.5", updated.RA, updated.Dec)
	}

	if err := db.SetTargetCoordinates("no_such_target", 1, 2); err == nil {
		t.Error("SetTargetCoordinates() on unknown target did not fail")
	}
}

func TestIndexOperations(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	op, err := db.CreateIndexOperation("index", "/data")
	if err != nil {
		t.Fatalf("CreateIndexOperation() failed: %v", err)
	}
	if op.Status != "running" {
		t.Errorf("new operation status = %q, want running", op.Status)
	}

	if err := db.FinishIndexOperation(op.ID, "ok"); err != nil {
		t.Fatalf("FinishIndexOperation() failed: %v", err)
	}

	ops, err := db.ListIndexOperations(10)
	if err != nil {
		t.Fatalf("ListIndexOperations() failed: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("operation count = %d, want 1", len(ops))
	}
	if ops[0].Status != "ok" || ops[0].FinishedAt == nil {
		t.Errorf("finished operation = %+v, want status ok with finished_at set", ops[0])
	}
}
