package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlerrors "github.com/devlens/devlens/internal/errors"
)

func TestReadCSV(t *testing.T) {
	in := "\xEF\xBB\xBFactor_id, verb ,object,timestamp,raw\n" +
		"u1,viewed,/auth/dashboard,2025-03-01T09:00:00Z,\"{\"\"actor\"\":{\"\"mbox\"\":\"\"x\"\"}}\"\n" +
		"\n" +
		",,,,\n" +
		"u2,answered\n"

	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "u1", rows[0]["actor_id"])
	assert.Equal(t, "viewed", rows[0]["verb"])
	assert.Equal(t, `{"actor":{"mbox":"x"}}`, rows[0]["raw"])
	assert.Equal(t, "answered", rows[1]["verb"])
	assert.Equal(t, "", rows[1]["object"])
}

func TestReadCSV_Empty(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestReadJSON(t *testing.T) {
	rows, err := ReadJSON(strings.NewReader(`[{"actor_id":"u1","raw":{"verb":{"id":"v"}}},{"actor_id":"u2"}]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u2", rows[1]["actor_id"])

	_, err = ReadJSON(strings.NewReader(`{"not":"an array"}`))
	require.Error(t, err)
	assert.Equal(t, dlerrors.CodeParseFailed, dlerrors.GetCode(err))
}

func TestReadJSONLines(t *testing.T) {
	rows, err := ReadJSONLines(strings.NewReader("{\"actor_id\":\"u1\"}\n\n{\"actor_id\":\"u2\"}\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, err = ReadJSONLines(strings.NewReader("{\"actor_id\":\"u1\"}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestFormatDetection(t *testing.T) {
	assert.Equal(t, FormatCSV, FormatFromName("events.CSV"))
	assert.Equal(t, FormatJSON, FormatFromName("events.json"))
	assert.Equal(t, FormatJSONLines, FormatFromName("events.ndjson"))
	assert.Equal(t, FormatCSV, FormatFromName("events"))

	f, ok := FormatFromContentType("text/csv; charset=utf-8")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)
	_, ok = FormatFromContentType("text/plain")
	assert.False(t, ok)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"actor_id":"u1"}`+"\n"), 0644))
	rows, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestRead_UnsupportedFormat(t *testing.T) {
	_, err := Read(strings.NewReader(""), Format("xml"))
	assert.Error(t, err)
}
