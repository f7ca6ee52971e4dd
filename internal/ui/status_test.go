package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusInfo_Zero(t *testing.T) {
	// Given: zero-valued status info
	info := StatusInfo{}

	// Then: all fields are zero/empty
	assert.Empty(t, info.ProjectName)
	assert.Equal(t, 0, info.TotalFiles)
	assert.Equal(t, 0, info.TotalChunks)
	assert.True(t, info.LastIndexed.IsZero())
}

func TestStatusInfo_JSONSerialization(t *testing.T) {
	// Given: populated status info
	info := StatusInfo{
		ProjectName:   "test-project",
		TotalFiles:    100,
		TotalChunks:   500,
		TotalSymbols:  42,
		LastIndexed:   time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		TotalSize:     13 * 1024 * 1024,
		WatcherStatus: "running",
		WatcherPID:    1234,
	}

	// When: serializing to JSON
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: JSON is valid and contains expected fields
	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "test-project", parsed["project_name"])
	assert.Equal(t, float64(100), parsed["total_files"])
	assert.Equal(t, float64(500), parsed["total_chunks"])
	assert.Equal(t, float64(42), parsed["total_symbols"])
	assert.Equal(t, "running", parsed["watcher_status"])
	assert.Equal(t, float64(1234), parsed["watcher_pid"])
}

func TestStatusRenderer_Render_Basic(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering status info
	info := StatusInfo{
		ProjectName:   "my-project",
		TotalFiles:    50,
		TotalChunks:   250,
		TotalSymbols:  30,
		LastIndexed:   time.Now(),
		TotalSize:     6*1024*1024 + 512*1024,
		WatcherStatus: "stopped",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: output contains key information
	output := buf.String()
	assert.Contains(t, output, "my-project")
	assert.Contains(t, output, "50")
	assert.Contains(t, output, "250")
	assert.Contains(t, output, "30")
	assert.Contains(t, output, "stopped")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering as JSON
	info := StatusInfo{
		ProjectName: "json-project",
		TotalFiles:  25,
		TotalChunks: 100,
	}

	err := r.RenderJSON(info)
	require.NoError(t, err)

	// Then: output is valid JSON
	var parsed StatusInfo
	err = json.Unmarshal(buf.Bytes(), &parsed)
	require.NoError(t, err)
	assert.Equal(t, "json-project", parsed.ProjectName)
	assert.Equal(t, 25, parsed.TotalFiles)
}

func TestStatusRenderer_NoColor(t *testing.T) {
	// Given: status renderer with noColor
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	info := StatusInfo{
		ProjectName:   "nocolor-project",
		WatcherStatus: "running",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: no ANSI codes in output
	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestStatusRenderer_WatcherStopped(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering with a stopped watcher
	info := StatusInfo{
		ProjectName:   "stopped-project",
		WatcherStatus: "stopped",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: shows stopped status
	output := buf.String()
	assert.Contains(t, output, "stopped")
}

func TestStatusRenderer_WatcherNotApplicable(t *testing.T) {
	// Given: a repo with no watcher registered
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering with watcher status omitted
	info := StatusInfo{
		ProjectName:   "unwatched-project",
		WatcherStatus: "n/a",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: no watcher line is printed
	output := buf.String()
	assert.NotContains(t, output, "Watcher:")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBytes(tt.bytes)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStatusRenderer_IndexSize(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true) // noColor for easier assertion

	// When: rendering with an index size
	info := StatusInfo{
		ProjectName: "storage-project",
		TotalSize:   12*1024*1024 + 512*1024,
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: size is human-readable
	output := buf.String()
	assert.Contains(t, output, "MB")
}
