// Package table reads and writes the delimited text files the pipeline works
// on. Cells stay verbatim strings; numeric parsing belongs to callers.
package table

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cytofkit/cytofkit/errors"
)

// Table is a header plus data rows, every row as wide as the header
type Table struct {
	Header []string
	Rows   [][]string
}

// NumRows returns the number of data rows
func (t *Table) NumRows() int { return len(t.Rows) }

// Index returns the position of the column whose canonical name matches name, or -1
func (t *Table) Index(name string) int {
	return IndexOf(t.Header, name)
}

// Column returns a copy of one column's cells
func (t *Table) Column(i int) []string {
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Stem returns the file name without directory and extension, the
// identifier a file carries through the pipeline.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Canonical normalises a column name for role matching
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IndexOf returns the position of the first column whose canonical name
// matches name, or -1
func IndexOf(header []string, name string) int {
	want := Canonical(name)
	for i, h := range header {
		if Canonical(h) == want {
			return i
		}
	}
	return -1
}

var nullTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {}, "<na>": {}, "#n/a": {},
}

// IsNull reports whether a cell holds a missing value
func IsNull(cell string) bool {
	_, ok := nullTokens[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

// ParseFloat parses a numeric cell, tolerating surrounding whitespace
func ParseFloat(cell string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatFloat renders a float the shortest way that round-trips
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Delimiters tried by SniffDelimiter, in tie-break order
var candidateDelimiters = []rune{',', '\t', ';', '|'}

// SniffDelimiter picks the candidate delimiter that occurs most often in a
// header line. Falls back to comma.
func SniffDelimiter(headerLine string) rune {
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(headerLine, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// ReadOptions controls Read
type ReadOptions struct {
	Delimiter rune // 0 sniffs from the header line
	MaxRows   int  // 0 reads all rows
}

// Read loads a whole file. A missing file, an empty file, a duplicate
// column name or a ragged row is an input error naming the file.
func Read(path string, opt ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInput(err, "failed to open %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniff(br)
	}

	r := csv.NewReader(br)
	r.Comma = delim
	r.ReuseRecord = false

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.InputErrorf("%s is empty: no header row", path)
	}
	if err != nil {
		return nil, errors.WrapInput(err, "failed to parse header of %s", path)
	}
	header = cleanHeader(header)
	if err := checkDuplicates(header, path); err != nil {
		return nil, err
	}

	t := &Table{Header: header}
	for {
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			break
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapInput(err, "failed to parse %s", path)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ReadHeader reads only the column names of a file
func ReadHeader(path string, delimiter rune) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInput(err, "failed to open %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if delimiter == 0 {
		delimiter = sniff(br)
	}
	r := csv.NewReader(br)
	r.Comma = delimiter
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.InputErrorf("%s is empty: no header row", path)
	}
	if err != nil {
		return nil, errors.WrapInput(err, "failed to parse header of %s", path)
	}
	header = cleanHeader(header)
	if err := checkDuplicates(header, path); err != nil {
		return nil, err
	}
	return header, nil
}

// Write stores header and rows at path as comma-separated text. The file is
// written beside its destination and renamed into place, so readers never
// observe a half-written file.
func Write(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.WrapIO(err, "failed to create %s", path)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	bw := bufio.NewWriter(tmp)
	w := csv.NewWriter(bw)
	if err := w.Write(header); err != nil {
		cleanup()
		return errors.WrapIO(err, "failed to write header of %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		cleanup()
		return errors.WrapIO(err, "failed to write rows of %s", path)
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return errors.WrapIO(err, "failed to flush %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapIO(err, "failed to close %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.WrapIO(err, "failed to move %s into place", path)
	}
	return nil
}

// WriteTable stores t at path, see Write
func WriteTable(path string, t *Table) error {
	return Write(path, t.Header, t.Rows)
}

func sniff(br *bufio.Reader) rune {
	line, _ := br.Peek(64 * 1024)
	s := string(line)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return SniffDelimiter(s)
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	copy(out, header)
	if len(out) > 0 {
		out[0] = strings.TrimPrefix(out[0], "\ufeff")
	}
	return out
}

func checkDuplicates(header []string, path string) error {
	seen := make(map[string]int, len(header))
	for i, h := range header {
		if j, ok := seen[h]; ok {
			return errors.InputErrorf("%s has duplicate column %q at positions %d and %d", path, h, j+1, i+1)
		}
		seen[h] = i
	}
	return nil
}
