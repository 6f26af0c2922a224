// Package ingest reads raw event batches from CSV, JSON array or JSON-lines
// sources.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/pkg/types"
)

// Format identifies a source encoding.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"
	FormatJSONLines Format = "jsonl"
)

// FormatFromName picks a format by file extension, defaulting to CSV.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".jsonl", ".ndjson":
		return FormatJSONLines
	default:
		return FormatCSV
	}
}

// FormatFromContentType maps an HTTP content type to a format.
func FormatFromContentType(ct string) (Format, bool) {
	ct = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	switch ct {
	case "text/csv", "application/csv":
		return FormatCSV, true
	case "application/x-ndjson", "application/jsonl", "application/x-jsonlines":
		return FormatJSONLines, true
	case "application/json":
		return FormatJSON, true
	}
	return "", false
}

// Read decodes a whole batch in the given format.
func Read(r io.Reader, format Format) ([]types.RawEvent, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatJSON:
		return ReadJSON(r)
	case FormatJSONLines:
		return ReadJSONLines(r)
	}
	return nil, dlerrors.NewInputError(dlerrors.CodeParseFailed, fmt.Sprintf("unsupported format %q", format))
}

// ReadFile reads a batch from disk, choosing the format by extension.
func ReadFile(path string) ([]types.RawEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, FormatFromName(path))
}

// ReadCSV reads a header row followed by records. Blank lines are skipped,
// short records leave trailing columns empty, and a UTF-8 BOM is ignored.
func ReadCSV(r io.Reader) ([]types.RawEvent, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []types.RawEvent{}, nil
	}
	if err != nil {
		return nil, dlerrors.Wrap(dlerrors.ErrCategoryInput, dlerrors.CodeParseFailed, "failed to read csv header", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := make([]types.RawEvent, 0)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dlerrors.Wrap(dlerrors.ErrCategoryInput, dlerrors.CodeParseFailed,
				fmt.Sprintf("failed to read csv record %d", len(rows)+1), err)
		}
		if blank(rec) {
			continue
		}
		row := make(types.RawEvent, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadJSON reads a JSON array of objects.
func ReadJSON(r io.Reader) ([]types.RawEvent, error) {
	dec := json.NewDecoder(r)
	var rows []types.RawEvent
	if err := dec.Decode(&rows); err != nil {
		if errors.Is(err, io.EOF) {
			return []types.RawEvent{}, nil
		}
		return nil, dlerrors.Wrap(dlerrors.ErrCategoryInput, dlerrors.CodeParseFailed, "failed to decode json rows", err)
	}
	if rows == nil {
		rows = []types.RawEvent{}
	}
	return rows, nil
}

// ReadJSONLines reads one JSON object per line. Blank lines are skipped.
func ReadJSONLines(r io.Reader) ([]types.RawEvent, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	rows := make([]types.RawEvent, 0)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var row types.RawEvent
		if err := json.Unmarshal(text, &row); err != nil {
			return nil, dlerrors.Wrap(dlerrors.ErrCategoryInput, dlerrors.CodeParseFailed,
				fmt.Sprintf("line %d: invalid json", line), err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, dlerrors.Wrap(dlerrors.ErrCategoryInput, dlerrors.CodeParseFailed, "failed to scan json lines", err)
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
