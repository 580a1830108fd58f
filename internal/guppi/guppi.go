// Package guppi extracts structured metadata from raw GUPPI instrument
// files. Extraction runs at one of three depths, each a superset of the
// previous: filename-only, header-only, and full-data (header plus the
// per-subintegration pointing/timing table). Extraction never touches
// persisted state and is idempotent: re-running on the same file yields an
// identical record.
package guppi

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Depth selects how much of a file an extraction pass reads.
type Depth int

const (
	// DepthFilename parses only the filename.
	DepthFilename Depth = iota
	// DepthHeader additionally reads the primary header block.
	DepthHeader
	// DepthFull additionally reads the per-subintegration sample table.
	DepthFull
)

func (d Depth) String() string {
	switch d {
	case DepthFilename:
		return "filename"
	case DepthHeader:
		return "header"
	case DepthFull:
		return "full"
	default:
		return "unknown"
	}
}

// Filename contract: <prefix>_<5-digit>_<freeform>_<4-digit scan>_<4-digit file>.<ext>
// e.g. "guppi_55562_wigglez1hr_centre_0012_0001.fits".
const filenameForm = "<prefix>_<5-digit>_<freeform>_<4-digit scan>_<4-digit file>.<ext>"

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9]+_\d{5}_.+_(\d{4})_(\d{4})\.[A-Za-z0-9]+$`)

// Project-id contract: <2-digit-year><half-letter>_<allocation>_<session>,
// e.g. "10B_036_05".
const projectIDForm = "<2-digit-year><half-letter>_<allocation-number>_<session-number>"

var projectIDPattern = regexp.MustCompile(`^(\d{2}[AB])_(\d+)_(\d+)$`)

// MatchesFilename reports whether base looks like an instrument file name.
// Directory scans use it to skip the stray files that live alongside data.
func MatchesFilename(base string) bool {
	return filenamePattern.MatchString(base)
}

// Record is the flat metadata extracted from one instrument file. Fields
// beyond ScanNumber/FileNumber are populated only at the depth that reads
// them; pointer fields stay nil until full-data extraction.
type Record struct {
	Path  string
	Depth Depth

	// Filename depth.
	ScanNumber int // instrument scan number
	FileNumber int // sequence number within the scan

	// Header depth.
	Mode             string
	AllocationTerm   string
	AllocationNumber int
	SessionNumber    int
	TargetName       string

	// Full-data depth.
	Cadence   *float64 // seconds per sample
	StartTime *float64 // Unix seconds
	EndTime   *float64
	RAMin     *float64 // degrees
	RAMax     *float64
	DecMin    *float64
	DecMax    *float64
	AzMin     *float64
	AzMax     *float64
	ElMin     *float64
	ElMax     *float64
}

// Fields returns the record as a flat dotted-key map, the shape used for
// logging and reporting. Keys not populated at the record's depth are absent.
func (r *Record) Fields() map[string]any {
	m := map[string]any{
		"scan.number": r.ScanNumber,
		"file.number": r.FileNumber,
	}
	if r.Depth >= DepthHeader {
		m["scan.mode"] = r.Mode
		m["allocation.term"] = r.AllocationTerm
		m["allocation.number"] = r.AllocationNumber
		m["session.number"] = r.SessionNumber
		m["target.name"] = r.TargetName
	}
	if r.Depth >= DepthFull {
		for key, v := range map[string]*float64{
			"scan.cadence":    r.Cadence,
			"scan.start_time": r.StartTime,
			"scan.end_time":   r.EndTime,
			"scan.ra_min":     r.RAMin,
			"scan.ra_max":     r.RAMax,
			"scan.dec_min":    r.DecMin,
			"scan.dec_max":    r.DecMax,
			"scan.az_min":     r.AzMin,
			"scan.az_max":     r.AzMax,
			"scan.el_min":     r.ElMin,
			"scan.el_max":     r.ElMax,
		} {
			if v != nil {
				m[key] = *v
			}
		}
	}
	return m
}

// Extractor parses instrument files into Records. The Opener supplies the
// external binary-file decoding capability.
type Extractor struct {
	open Opener
}

// NewExtractor creates an Extractor that opens raw files through open.
// open may be nil if only filename-depth extraction will be used.
func NewExtractor(open Opener) *Extractor {
	return &Extractor{open: open}
}

// Extract runs extraction at the requested depth.
func (e *Extractor) Extract(path string, depth Depth) (*Record, error) {
	switch depth {
	case DepthHeader:
		return e.ExtractHeader(path)
	case DepthFull:
		return e.ExtractFull(path)
	default:
		return e.ExtractFilename(path)
	}
}

// ExtractFilename parses only the filename, recovering the instrument scan
// number and the intra-scan file sequence number.
func (e *Extractor) ExtractFilename(path string) (*Record, error) {
	base := filepath.Base(path)
	m := filenamePattern.FindStringSubmatch(base)
	if m == nil {
		return nil, &MalformedFilenameError{Filename: base}
	}

	// The pattern constrains both groups to digits, so Atoi cannot fail.
	scanNumber, _ := strconv.Atoi(m[1])
	fileNumber, _ := strconv.Atoi(m[2])

	return &Record{
		Path:       path,
		Depth:      DepthFilename,
		ScanNumber: scanNumber,
		FileNumber: fileNumber,
	}, nil
}

// ExtractHeader opens the file and reads its primary header block on top of
// the filename fields. Bulk sample data is not loaded.
func (e *Extractor) ExtractHeader(path string) (*Record, error) {
	rec, err := e.ExtractFilename(path)
	if err != nil {
		return nil, err
	}

	raw, err := e.open(path)
	if err != nil {
		return nil, &UnreadableHeaderError{Path: path, Reason: "cannot open file", Err: err}
	}
	defer raw.Close()

	if err := e.readHeader(raw, rec); err != nil {
		return nil, err
	}
	rec.Depth = DepthHeader
	return rec, nil
}

// ExtractFull reads the header and the per-subintegration table, computing
// cadence, scan start/end times and pointing bounding boxes.
func (e *Extractor) ExtractFull(path string) (*Record, error) {
	rec, err := e.ExtractFilename(path)
	if err != nil {
		return nil, err
	}

	raw, err := e.open(path)
	if err != nil {
		return nil, &UnreadableHeaderError{Path: path, Reason: "cannot open file", Err: err}
	}
	defer raw.Close()

	if err := e.readHeader(raw, rec); err != nil {
		return nil, err
	}
	if err := e.readSampleTable(raw, rec); err != nil {
		return nil, err
	}
	rec.Depth = DepthFull
	return rec, nil
}

// readHeader fills the header-depth fields of rec from raw.
func (e *Extractor) readHeader(raw RawFile, rec *Record) error {
	mode, ok := raw.HeaderValue(keyObsMode)
	if !ok {
		return &UnreadableHeaderError{Path: rec.Path, Reason: "missing header key " + keyObsMode}
	}
	projectID, ok := raw.HeaderValue(keyProjectID)
	if !ok {
		return &UnreadableHeaderError{Path: rec.Path, Reason: "missing header key " + keyProjectID}
	}
	source, ok := raw.HeaderValue(keySourceName)
	if !ok {
		return &UnreadableHeaderError{Path: rec.Path, Reason: "missing header key " + keySourceName}
	}

	projectID = strings.TrimSpace(projectID)
	m := projectIDPattern.FindStringSubmatch(projectID)
	if m == nil {
		return &MalformedProjectIDError{Path: rec.Path, ProjectID: projectID}
	}
	allocationNumber, _ := strconv.Atoi(m[2])
	sessionNumber, _ := strconv.Atoi(m[3])

	rec.Mode = strings.TrimSpace(mode)
	rec.AllocationTerm = m[1]
	rec.AllocationNumber = allocationNumber
	rec.SessionNumber = sessionNumber
	rec.TargetName = strings.TrimSpace(source)
	return nil
}

// readSampleTable fills the full-depth fields of rec from raw's
// per-subintegration table.
func (e *Extractor) readSampleTable(raw RawFile, rec *Record) error {
	cadence, err := e.headerFloat(raw, rec.Path, keyCadence)
	if err != nil {
		return err
	}

	// Reference time of the file: whole MJD day plus in-day seconds plus a
	// sub-second offset, converted to Unix seconds.
	imjd, err := e.headerFloat(raw, rec.Path, keyStartIMJD)
	if err != nil {
		return err
	}
	smjd, err := e.headerFloat(raw, rec.Path, keyStartSMJD)
	if err != nil {
		return err
	}
	offs, err := e.headerFloat(raw, rec.Path, keyStartOffs)
	if err != nil {
		return err
	}
	refTime := MJDToUnix(imjd) + smjd + offs

	subOffsets, err := e.column(raw, rec.Path, colSubintOffset)
	if err != nil {
		return err
	}
	subDurations, err := e.column(raw, rec.Path, colSubintDuration)
	if err != nil {
		return err
	}
	if len(subDurations) != len(subOffsets) {
		return &UnreadableDataError{Path: rec.Path, Reason: "subintegration column length mismatch"}
	}

	// OFFS_SUB holds each subintegration's center offset; shift by half a
	// subintegration to get the scan's outer edges.
	last := len(subOffsets) - 1
	startTime := refTime + subOffsets[0] - subDurations[0]/2
	endTime := refTime + subOffsets[last] + subDurations[last]/2

	raMin, raMax, err := e.columnBounds(raw, rec.Path, colRA)
	if err != nil {
		return err
	}
	decMin, decMax, err := e.columnBounds(raw, rec.Path, colDec)
	if err != nil {
		return err
	}
	azMin, azMax, err := e.columnBounds(raw, rec.Path, colAzimuth)
	if err != nil {
		return err
	}
	zenMin, zenMax, err := e.columnBounds(raw, rec.Path, colZenith)
	if err != nil {
		return err
	}

	// Elevation is complementary to zenith angle, so the bounds swap:
	// the largest zenith angle is the lowest elevation.
	elMin := 90 - zenMax
	elMax := 90 - zenMin

	rec.Cadence = &cadence
	rec.StartTime = &startTime
	rec.EndTime = &endTime
	rec.RAMin, rec.RAMax = &raMin, &raMax
	rec.DecMin, rec.DecMax = &decMin, &decMax
	rec.AzMin, rec.AzMax = &azMin, &azMax
	rec.ElMin, rec.ElMax = &elMin, &elMax
	return nil
}

func (e *Extractor) headerFloat(raw RawFile, path, key string) (float64, error) {
	s, ok := raw.HeaderValue(key)
	if !ok {
		return 0, &UnreadableHeaderError{Path: path, Reason: "missing header key " + key}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &UnreadableHeaderError{Path: path, Reason: "non-numeric header key " + key, Err: err}
	}
	return v, nil
}

func (e *Extractor) column(raw RawFile, path, name string) ([]float64, error) {
	col, err := raw.Column(name)
	if err != nil {
		return nil, &UnreadableDataError{Path: path, Reason: "reading column " + name, Err: err}
	}
	if len(col) == 0 {
		return nil, &UnreadableDataError{Path: path, Reason: "empty column " + name}
	}
	return col, nil
}

func (e *Extractor) columnBounds(raw RawFile, path, name string) (min, max float64, err error) {
	col, err := e.column(raw, path, name)
	if err != nil {
		return 0, 0, err
	}
	min, max = col[0], col[0]
	for _, v := range col[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, nil
}
