// Package source parses the tabular course export (chapter, lesson, content)
// into validated source records. Pure: a file path or reader in, domain
// records out. No database dependencies.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// DefaultMinContentLength rejects placeholder text such as "TBD" or "test".
const DefaultMinContentLength = 20

// Reasons a row is rejected during validation.
const (
	ReasonEmptyChapter = "empty chapter"
	ReasonEmptyLesson  = "empty lesson"
	ReasonEmptyContent = "empty content"
	ReasonShortContent = "content too short"
	ReasonDuplicate    = "duplicate lesson"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures parsing.
type Options struct {
	// MinContentLength is the minimum content length in runes after
	// trimming. Zero means DefaultMinContentLength.
	MinContentLength int
}

// Issue describes one skipped row.
type Issue struct {
	Row    int
	Reason string
	Err    error
}

// Stats summarises a parse.
type Stats struct {
	TotalRows     int
	Accepted      int
	Rejected      int
	Malformed     int
	RejectReasons map[string]int
}

// Result is the outcome of a parse.
type Result struct {
	Records []domain.SourceRecord
	Stats   Stats
	Issues  []Issue
}

// Parse reads the source file at path.
func Parse(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, domain.ErrSourceNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return ParseReader(f, opts)
}

// ParseReader reads a source from r. The first row is the header and is
// skipped; it must have at least three columns.
func ParseReader(r io.Reader, opts Options) (*Result, error) {
	minLen := opts.MinContentLength
	if minLen <= 0 {
		minLen = DefaultMinContentLength
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1 // allow variable column count
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, domain.ErrMissingHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("%w: %d columns", domain.ErrMissingHeader, len(header))
	}

	res := &Result{Stats: Stats{RejectReasons: make(map[string]int)}}
	seen := make(map[string]struct{})

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("read row: %w", err)
			}
			res.Stats.TotalRows++
			res.malformed(perr.StartLine, perr.Err.Error())
			continue
		}

		line, _ := reader.FieldPos(0)
		res.Stats.TotalRows++

		if len(record) < 3 {
			res.malformed(line, fmt.Sprintf("expected 3 columns, got %d", len(record)))
			continue
		}

		rec := domain.SourceRecord{
			ChapterName: strings.TrimSpace(record[0]),
			LessonName:  strings.TrimSpace(record[1]),
			Content:     strings.TrimSpace(record[2]),
			RowNumber:   line,
		}

		if reason := validate(rec, minLen); reason != "" {
			res.reject(line, reason)
			continue
		}

		key := domain.NormalizeTitle(rec.ChapterName) + "\x00" + domain.NormalizeTitle(rec.LessonName)
		if _, dup := seen[key]; dup {
			res.reject(line, ReasonDuplicate)
			continue
		}
		seen[key] = struct{}{}

		res.Records = append(res.Records, rec)
		res.Stats.Accepted++
	}

	return res, nil
}

func validate(rec domain.SourceRecord, minLen int) string {
	switch {
	case rec.ChapterName == "":
		return ReasonEmptyChapter
	case rec.LessonName == "":
		return ReasonEmptyLesson
	case rec.Content == "":
		return ReasonEmptyContent
	case domain.ContentLength(rec.Content) < minLen:
		return ReasonShortContent
	}
	return ""
}

func (r *Result) malformed(line int, reason string) {
	r.Stats.Malformed++
	r.Issues = append(r.Issues, Issue{
		Row:    line,
		Reason: reason,
		Err:    &domain.MalformedRowError{Row: line, Reason: reason},
	})
}

func (r *Result) reject(line int, reason string) {
	r.Stats.Rejected++
	r.Stats.RejectReasons[reason]++
	r.Issues = append(r.Issues, Issue{Row: line, Reason: reason})
}
