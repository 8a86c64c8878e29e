// Package sampler reads a bounded sample of a CSV file, detecting the
// delimiter and encoding when not supplied. Sampling failures are fatal to
// the pipeline and carry a typed error.
package sampler

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/johndauphine/csv2pg/internal/logging"
	"github.com/johndauphine/csv2pg/internal/schema"
)

// Error is a sampling failure: unreadable, empty, or undetectable input.
type Error struct {
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sampling %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("sampling %s: %s", e.Path, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Sample is the bounded view of a CSV used for inference.
type Sample struct {
	Path      string
	Headers   []string
	Rows      [][]string // parallel to Headers
	Delimiter rune
	Encoding  string
	HasHeader bool
	FileSize  int64
}

// candidateDelimiters are tried in order during detection.
var candidateDelimiters = []rune{',', '\t', '|', ';'}

// probeBytes is how much of the file is read for delimiter/encoding detection.
const probeBytes = 100 * 1024

// Options control sampling. Zero values mean "detect".
type Options struct {
	MaxRows   int
	Encoding  string
	Delimiter rune
}

// SampleCSV reads up to opts.MaxRows data rows from the file at path.
func SampleCSV(path string, opts Options) (*Sample, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Path: path, Msg: "file not readable", Err: err}
	}
	if info.Size() == 0 {
		return nil, &Error{Path: path, Msg: "file is empty"}
	}

	probe, err := readProbe(path)
	if err != nil {
		return nil, &Error{Path: path, Msg: "reading probe", Err: err}
	}

	encoding := opts.Encoding
	if encoding == "" {
		encoding = detectEncoding(probe)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim, err = detectDelimiter(probe)
		if err != nil {
			return nil, &Error{Path: path, Msg: "delimiter detection failed", Err: err}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Msg: "opening file", Err: err}
	}
	defer f.Close()

	r := csv.NewReader(skipBOM(f))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err := r.Read()
	if err != nil {
		return nil, &Error{Path: path, Msg: "reading header row", Err: err}
	}
	if len(headers) == 0 {
		return nil, &Error{Path: path, Msg: "no columns detected"}
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	dedupeHeaders(headers)

	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = 100
	}

	rows := make([][]string, 0, maxRows)
	for len(rows) < maxRows {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Ragged or malformed rows are skipped, not fatal; the bulk
			// loader has its own error budget for those.
			logging.Debug("skipping malformed row: %v", err)
			continue
		}
		// Normalize record width to the header count.
		if len(rec) < len(headers) {
			padded := make([]string, len(headers))
			copy(padded, rec)
			rec = padded
		} else if len(rec) > len(headers) {
			rec = rec[:len(headers)]
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return nil, &Error{Path: path, Msg: "no data rows found"}
	}

	logging.Info("sampled %d rows, %d columns from %s", len(rows), len(headers), path)

	return &Sample{
		Path:      path,
		Headers:   headers,
		Rows:      rows,
		Delimiter: delim,
		Encoding:  encoding,
		HasHeader: true,
		FileSize:  info.Size(),
	}, nil
}

// dedupeHeaders renames repeated header names in place so each column keeps
// its own samples. The second "name" becomes "name_2", and so on.
func dedupeHeaders(headers []string) {
	seen := make(map[string]bool, len(headers))
	for i, name := range headers {
		if !seen[name] {
			seen[name] = true
			continue
		}
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s_%d", name, n)
			if !seen[candidate] {
				headers[i] = candidate
				seen[candidate] = true
				break
			}
		}
	}
}

func readProbe(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, probeBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// detectEncoding does a cheap sniff: BOM, then UTF-8 validity, else latin-1.
func detectEncoding(probe []byte) string {
	if bytes.HasPrefix(probe, []byte{0xEF, 0xBB, 0xBF}) {
		return "utf-8-bom"
	}
	if utf8.Valid(probe) {
		return "utf-8"
	}
	return "latin-1"
}

// detectDelimiter tries each candidate against the probe and picks the first
// that yields more than one column at a consistent width across probe lines.
func detectDelimiter(probe []byte) (rune, error) {
	for _, delim := range candidateDelimiters {
		r := csv.NewReader(bytes.NewReader(probe))
		r.Comma = delim
		r.LazyQuotes = true

		first, err := r.Read()
		if err != nil || len(first) < 2 {
			continue
		}

		consistent := true
		for i := 0; i < 4; i++ {
			rec, err := r.Read()
			if err != nil {
				break
			}
			if len(rec) != len(first) {
				consistent = false
				break
			}
		}
		if consistent {
			logging.Debug("detected delimiter %q (%d columns)", delim, len(first))
			return delim, nil
		}
	}
	return 0, fmt.Errorf("no candidate delimiter produced a consistent multi-column layout")
}

// skipBOM strips a UTF-8 BOM from the start of the stream if present.
func skipBOM(r io.Reader) io.Reader {
	br := make([]byte, 3)
	n, _ := io.ReadFull(r, br)
	if n == 3 && br[0] == 0xEF && br[1] == 0xBB && br[2] == 0xBF {
		return r
	}
	return io.MultiReader(bytes.NewReader(br[:n]), r)
}

// ColumnSamples pivots the row-oriented sample into per-column samples.
func (s *Sample) ColumnSamples() []schema.ColumnSample {
	out := make([]schema.ColumnSample, len(s.Headers))
	for i, name := range s.Headers {
		values := make([]string, len(s.Rows))
		nulls := 0
		for j, row := range s.Rows {
			values[j] = row[i]
			if strings.TrimSpace(row[i]) == "" {
				nulls++
			}
		}
		out[i] = schema.ColumnSample{
			Name:       name,
			Values:     values,
			NullCount:  nulls,
			TotalCount: len(values),
		}
	}
	return out
}

// Checksum returns the file's SHA-256 digest as "sha256:<hex>".
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &Error{Path: path, Msg: "opening file for checksum", Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &Error{Path: path, Msg: "hashing file", Err: err}
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

// TableNameFromPath derives a default table name from the file name.
func TableNameFromPath(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	base = strings.ToLower(base)
	base = strings.ReplaceAll(base, "-", "_")
	base = strings.ReplaceAll(base, " ", "_")
	return base
}
