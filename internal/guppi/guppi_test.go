package guppi_test

import (
	"errors"
	"reflect"
	"testing"

	"gbtim/internal/guppi"
	"gbtim/internal/testutil"
)

const testFilename = "guppi_55562_wigglez1hr_centre_0012_0001.fits"

func TestExtractFilename(t *testing.T) {
	e := guppi.NewExtractor(nil)

	t.Run("recovers scan and file numbers", func(t *testing.T) {
		rec, err := e.ExtractFilename("/data/raw/" + testFilename)
		if err != nil {
			t.Fatalf("ExtractFilename() error = %v", err)
		}
		if rec.ScanNumber != 12 {
			t.Errorf("ScanNumber = %d, want 12", rec.ScanNumber)
		}
		if rec.FileNumber != 1 {
			t.Errorf("FileNumber = %d, want 1", rec.FileNumber)
		}
		if rec.Depth != guppi.DepthFilename {
			t.Errorf("Depth = %v, want %v", rec.Depth, guppi.DepthFilename)
		}
	})

	t.Run("rejects non-matching names", func(t *testing.T) {
		bad := []string{
			"",
			"notes.txt",
			"guppi_55562_wigglez1hr_0012.fits",       // missing file number
			"guppi_5556_wigglez1hr_0012_0001.fits",   // 4-digit leading field
			"guppi_55562_wigglez1hr_012_0001.fits",   // 3-digit scan
			"guppi_55562_wigglez1hr_0012_0001",       // no extension
			"_55562_wigglez1hr_0012_0001.fits",       // empty prefix
		}
		for _, name := range bad {
			_, err := e.ExtractFilename(name)
			var mf *guppi.MalformedFilenameError
			if !errors.As(err, &mf) {
				t.Errorf("ExtractFilename(%q) error = %v, want MalformedFilenameError", name, err)
			}
		}
	})
}

func TestExtractHeader(t *testing.T) {
	newExtractor := func(raw *testutil.FakeRawFile) *guppi.Extractor {
		return guppi.NewExtractor(testutil.FakeOpener(map[string]*testutil.FakeRawFile{
			testFilename: raw,
		}))
	}

	t.Run("extracts trimmed header fields", func(t *testing.T) {
		raw := &testutil.FakeRawFile{Headers: testutil.NewGuppiHeaders()}
		e := newExtractor(raw)

		rec, err := e.ExtractHeader(testFilename)
		if err != nil {
			t.Fatalf("ExtractHeader() error = %v", err)
		}
		if rec.Mode != "RALONGMAP" {
			t.Errorf("Mode = %q, want %q", rec.Mode, "RALONGMAP")
		}
		if rec.AllocationTerm != "10B" {
			t.Errorf("AllocationTerm = %q, want %q", rec.AllocationTerm, "10B")
		}
		if rec.AllocationNumber != 36 {
			t.Errorf("AllocationNumber = %d, want 36", rec.AllocationNumber)
		}
		if rec.SessionNumber != 5 {
			t.Errorf("SessionNumber = %d, want 5", rec.SessionNumber)
		}
		if rec.TargetName != "wigglez1hr_centre" {
			t.Errorf("TargetName = %q, want %q", rec.TargetName, "wigglez1hr_centre")
		}
		if !raw.Closed {
			t.Error("raw file was not closed")
		}
	})

	t.Run("fails on malformed project id", func(t *testing.T) {
		headers := testutil.NewGuppiHeaders()
		headers["PROJID"] = "GBT10B-036"
		e := newExtractor(&testutil.FakeRawFile{Headers: headers})

		_, err := e.ExtractHeader(testFilename)
		var mp *guppi.MalformedProjectIDError
		if !errors.As(err, &mp) {
			t.Fatalf("ExtractHeader() error = %v, want MalformedProjectIDError", err)
		}
		if mp.ProjectID != "GBT10B-036" {
			t.Errorf("ProjectID = %q, want %q", mp.ProjectID, "GBT10B-036")
		}
	})

	t.Run("fails on missing header key", func(t *testing.T) {
		headers := testutil.NewGuppiHeaders()
		delete(headers, "SRC_NAME")
		e := newExtractor(&testutil.FakeRawFile{Headers: headers})

		_, err := e.ExtractHeader(testFilename)
		var uh *guppi.UnreadableHeaderError
		if !errors.As(err, &uh) {
			t.Fatalf("ExtractHeader() error = %v, want UnreadableHeaderError", err)
		}
	})

	t.Run("fails on unopenable file", func(t *testing.T) {
		e := newExtractor(&testutil.FakeRawFile{Headers: testutil.NewGuppiHeaders()})

		_, err := e.ExtractHeader("guppi_55562_other_field_0001_0000.fits")
		var uh *guppi.UnreadableHeaderError
		if !errors.As(err, &uh) {
			t.Fatalf("ExtractHeader() error = %v, want UnreadableHeaderError", err)
		}
	})
}

func TestExtractFull(t *testing.T) {
	newExtractor := func(raw *testutil.FakeRawFile) *guppi.Extractor {
		return guppi.NewExtractor(testutil.FakeOpener(map[string]*testutil.FakeRawFile{
			testFilename: raw,
		}))
	}

	t.Run("computes timing and bounding boxes", func(t *testing.T) {
		e := newExtractor(&testutil.FakeRawFile{
			Headers: testutil.NewGuppiHeaders(),
			Columns: testutil.NewGuppiColumns(),
		})

		rec, err := e.ExtractFull(testFilename)
		if err != nil {
			t.Fatalf("ExtractFull() error = %v", err)
		}

		// STT_IMJD 58849 with zero SMJD/OFFS is 2020-01-01T00:00:00Z.
		// First subint center 0.5s minus half of 1s; last 2.5s plus half.
		if *rec.StartTime != 1577836800 {
			t.Errorf("StartTime = %v, want 1577836800", *rec.StartTime)
		}
		if *rec.EndTime != 1577836803 {
			t.Errorf("EndTime = %v, want 1577836803", *rec.EndTime)
		}
		if *rec.Cadence != 0.001024 {
			t.Errorf("Cadence = %v, want 0.001024", *rec.Cadence)
		}
		if *rec.RAMin != 15.0 || *rec.RAMax != 16.0 {
			t.Errorf("RA bounds = [%v, %v], want [15, 16]", *rec.RAMin, *rec.RAMax)
		}
		if *rec.DecMin != -1.0 || *rec.DecMax != 0.0 {
			t.Errorf("Dec bounds = [%v, %v], want [-1, 0]", *rec.DecMin, *rec.DecMax)
		}
		if *rec.AzMin != 120.0 || *rec.AzMax != 122.0 {
			t.Errorf("Az bounds = [%v, %v], want [120, 122]", *rec.AzMin, *rec.AzMax)
		}
	})

	t.Run("converts zenith bounds to complementary elevation bounds", func(t *testing.T) {
		// Zenith angles span [10, 80]; elevation is 90 minus zenith, so the
		// bounds come out reversed: el_min = 10, el_max = 80.
		e := newExtractor(&testutil.FakeRawFile{
			Headers: testutil.NewGuppiHeaders(),
			Columns: testutil.NewGuppiColumns(),
		})

		rec, err := e.ExtractFull(testFilename)
		if err != nil {
			t.Fatalf("ExtractFull() error = %v", err)
		}
		if *rec.ElMin != 10.0 {
			t.Errorf("ElMin = %v, want 10", *rec.ElMin)
		}
		if *rec.ElMax != 80.0 {
			t.Errorf("ElMax = %v, want 80", *rec.ElMax)
		}
	})

	t.Run("fails on missing column", func(t *testing.T) {
		columns := testutil.NewGuppiColumns()
		delete(columns, "TEL_ZEN")
		e := newExtractor(&testutil.FakeRawFile{
			Headers: testutil.NewGuppiHeaders(),
			Columns: columns,
		})

		_, err := e.ExtractFull(testFilename)
		var ud *guppi.UnreadableDataError
		if !errors.As(err, &ud) {
			t.Fatalf("ExtractFull() error = %v, want UnreadableDataError", err)
		}
	})

	t.Run("propagates header failures", func(t *testing.T) {
		headers := testutil.NewGuppiHeaders()
		headers["PROJID"] = "nonsense"
		e := newExtractor(&testutil.FakeRawFile{
			Headers: headers,
			Columns: testutil.NewGuppiColumns(),
		})

		_, err := e.ExtractFull(testFilename)
		var mp *guppi.MalformedProjectIDError
		if !errors.As(err, &mp) {
			t.Fatalf("ExtractFull() error = %v, want MalformedProjectIDError", err)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		files := map[string]*testutil.FakeRawFile{
			testFilename: {
				Headers: testutil.NewGuppiHeaders(),
				Columns: testutil.NewGuppiColumns(),
			},
		}
		e := guppi.NewExtractor(func(path string) (guppi.RawFile, error) {
			return testutil.FakeOpener(files)(path)
		})

		rec1, err := e.ExtractFull(testFilename)
		if err != nil {
			t.Fatalf("first ExtractFull() error = %v", err)
		}
		rec2, err := e.ExtractFull(testFilename)
		if err != nil {
			t.Fatalf("second ExtractFull() error = %v", err)
		}
		if !reflect.DeepEqual(rec1.Fields(), rec2.Fields()) {
			t.Errorf("extraction not idempotent:\nfirst:  %v\nsecond: %v", rec1.Fields(), rec2.Fields())
		}
	})
}
