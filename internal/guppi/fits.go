package guppi

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// FITS files are sequences of HDUs, each a header of 80-byte cards padded
// to 2880-byte blocks, followed by data padded the same way. GUPPI PSRFITS
// keeps observation keys in the primary header and the per-subintegration
// table in a BINTABLE extension named SUBINT. This reader covers exactly
// that subset; it is not a general FITS implementation.

const (
	fitsBlockSize = 2880
	fitsCardSize  = 80
)

// OpenFITS opens a GUPPI PSRFITS file for metadata extraction. It satisfies
// the Opener type.
func OpenFITS(path string) (RawFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	ff := &fitsFile{f: f, headers: make(map[string]string)}
	if err := ff.load(); err != nil {
		f.Close()
		return nil, err
	}
	return ff, nil
}

type fitsFile struct {
	f       *os.File
	headers map[string]string // primary header cards plus SUBINT table cards
	table   *binTable         // nil when the file has no SUBINT extension
}

// binTable describes the layout of a BINTABLE extension.
type binTable struct {
	dataOffset int64
	rowBytes   int64
	rows       int64
	fields     []tableField
}

type tableField struct {
	name   string
	offset int64 // byte offset within a row
	typ    byte  // TFORM type code
	repeat int64
}

var _ RawFile = (*fitsFile)(nil)

func (ff *fitsFile) HeaderValue(key string) (string, bool) {
	v, ok := ff.headers[key]
	return v, ok
}

// Column reads the named table column as float64s, one value per
// subintegration row. Columns with a repeat count yield the first element
// of each row.
func (ff *fitsFile) Column(name string) ([]float64, error) {
	if ff.table == nil {
		return nil, fmt.Errorf("no SUBINT table in file")
	}

	var field *tableField
	for i := range ff.table.fields {
		if ff.table.fields[i].name == name {
			field = &ff.table.fields[i]
			break
		}
	}
	if field == nil {
		return nil, fmt.Errorf("no such column: %s", name)
	}

	width, err := fieldTypeSize(field.typ)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, width)
	values := make([]float64, ff.table.rows)
	for row := int64(0); row < ff.table.rows; row++ {
		pos := ff.table.dataOffset + row*ff.table.rowBytes + field.offset
		if _, err := ff.f.ReadAt(buf, pos); err != nil {
			return nil, fmt.Errorf("reading column %s row %d: %w", name, row, err)
		}
		v, err := decodeValue(buf, field.typ)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		values[row] = v
	}
	return values, nil
}

func (ff *fitsFile) Close() error {
	return ff.f.Close()
}

// load parses the primary header and locates the SUBINT extension,
// skipping over any other HDUs.
func (ff *fitsFile) load() error {
	offset := int64(0)

	primary, next, err := ff.readHeaderUnit(offset)
	if err != nil {
		return fmt.Errorf("reading primary header: %w", err)
	}
	if v, ok := primary["SIMPLE"]; !ok || v != "T" {
		return fmt.Errorf("not a FITS file")
	}
	for k, v := range primary {
		ff.headers[k] = v
	}
	offset = next + paddedSize(headerDataSize(primary))

	for {
		cards, next, err := ff.readHeaderUnit(offset)
		if err != nil {
			// EOF before a SUBINT extension: header-depth extraction can
			// still proceed, column reads will fail.
			return nil
		}
		dataStart := next
		dataSize := headerDataSize(cards)

		if strings.EqualFold(strings.TrimSpace(cards["EXTNAME"]), "SUBINT") {
			table, err := parseBinTable(cards, dataStart)
			if err != nil {
				return err
			}
			ff.table = table
			for k, v := range cards {
				if _, dup := ff.headers[k]; !dup {
					ff.headers[k] = v
				}
			}
			return nil
		}

		offset = dataStart + paddedSize(dataSize)
	}
}

// readHeaderUnit reads one HDU header starting at offset, returning its
// cards and the file offset just past the header padding.
func (ff *fitsFile) readHeaderUnit(offset int64) (map[string]string, int64, error) {
	cards := make(map[string]string)
	block := make([]byte, fitsBlockSize)

	for {
		if _, err := ff.f.ReadAt(block, offset); err != nil {
			return nil, 0, err
		}
		offset += fitsBlockSize

		for i := 0; i < fitsBlockSize; i += fitsCardSize {
			card := block[i : i+fitsCardSize]
			key := strings.TrimRight(string(card[:8]), " ")
			if key == "END" {
				return cards, offset, nil
			}
			if key == "" || key == "COMMENT" || key == "HISTORY" {
				continue
			}
			if card[8] != '=' {
				continue
			}
			cards[key] = parseCardValue(string(card[9:]))
		}
	}
}

// parseCardValue extracts the value portion of a header card, stripping the
// trailing comment and string quoting.
func parseCardValue(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") {
		// Quoted string; '' inside is an escaped quote.
		var b strings.Builder
		for i := 1; i < len(s); i++ {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				break
			}
			b.WriteByte(s[i])
		}
		return strings.TrimRight(b.String(), " ")
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// headerDataSize computes the data unit size in bytes from NAXIS keywords.
func headerDataSize(cards map[string]string) int64 {
	bitpix := cardInt(cards, "BITPIX")
	naxis := cardInt(cards, "NAXIS")
	if naxis == 0 {
		return 0
	}
	size := int64(1)
	for i := int64(1); i <= naxis; i++ {
		n := cardInt(cards, fmt.Sprintf("NAXIS%d", i))
		if n == 0 {
			return 0
		}
		size *= n
	}
	abs := bitpix
	if abs < 0 {
		abs = -abs
	}
	return size * abs / 8
}

func cardInt(cards map[string]string, key string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(cards[key]), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func paddedSize(n int64) int64 {
	if rem := n % fitsBlockSize; rem != 0 {
		return n + fitsBlockSize - rem
	}
	return n
}

var tformPattern = regexp.MustCompile(`^(\d*)([LXBIJKAED])`)

// parseBinTable builds the column layout of a BINTABLE extension from its
// header cards.
func parseBinTable(cards map[string]string, dataOffset int64) (*binTable, error) {
	t := &binTable{
		dataOffset: dataOffset,
		rowBytes:   cardInt(cards, "NAXIS1"),
		rows:       cardInt(cards, "NAXIS2"),
	}
	nFields := cardInt(cards, "TFIELDS")
	if t.rowBytes == 0 || nFields == 0 {
		return nil, fmt.Errorf("malformed SUBINT table header")
	}

	offset := int64(0)
	for i := int64(1); i <= nFields; i++ {
		tform := strings.TrimSpace(cards[fmt.Sprintf("TFORM%d", i)])
		m := tformPattern.FindStringSubmatch(tform)
		if m == nil {
			return nil, fmt.Errorf("unsupported TFORM%d: %q", i, tform)
		}
		repeat := int64(1)
		if m[1] != "" {
			repeat, _ = strconv.ParseInt(m[1], 10, 64)
		}
		typ := m[2][0]
		width, err := fieldTypeSize(typ)
		if err != nil {
			return nil, fmt.Errorf("TFORM%d: %w", i, err)
		}

		t.fields = append(t.fields, tableField{
			name:   strings.TrimSpace(cards[fmt.Sprintf("TTYPE%d", i)]),
			offset: offset,
			typ:    typ,
			repeat: repeat,
		})
		offset += repeat * width
	}

	if offset > t.rowBytes {
		return nil, fmt.Errorf("SUBINT row layout (%d bytes) exceeds NAXIS1 (%d)", offset, t.rowBytes)
	}
	return t, nil
}

// fieldTypeSize returns the byte width of one element of a TFORM type code.
func fieldTypeSize(typ byte) (int64, error) {
	switch typ {
	case 'L', 'X', 'B', 'A':
		return 1, nil
	case 'I':
		return 2, nil
	case 'J', 'E':
		return 4, nil
	case 'K', 'D':
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported column type %q", string(typ))
	}
}

// decodeValue converts one big-endian element into a float64.
func decodeValue(buf []byte, typ byte) (float64, error) {
	switch typ {
	case 'B':
		return float64(buf[0]), nil
	case 'I':
		return float64(int16(binary.BigEndian.Uint16(buf))), nil
	case 'J':
		return float64(int32(binary.BigEndian.Uint32(buf))), nil
	case 'K':
		return float64(int64(binary.BigEndian.Uint64(buf))), nil
	case 'E':
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf))), nil
	case 'D':
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
	default:
		return 0, fmt.Errorf("column type %q is not numeric", string(typ))
	}
}
