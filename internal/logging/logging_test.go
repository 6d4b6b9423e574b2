package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLoggerWithPath_JSON(t *testing.T) {
	var buf bytes.Buffer
	result := NewLoggerWithPath(Config{Level: "debug", Format: FormatJSON, Writer: &buf})
	assert.False(t, result.UsingFile)
	assert.False(t, result.FallbackUsed)

	logger := ComponentLogger(result.Logger, "clip")
	logger.Debug().Str("id", "7").Msg("selecting")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "clip", line["component"])
	assert.Equal(t, "7", line["id"])
	assert.Equal(t, "debug", line["level"])
}

func TestNewLoggerWithPath_Console(t *testing.T) {
	var buf bytes.Buffer
	result := NewLoggerWithPath(Config{Level: "info", Format: FormatConsole, Writer: &buf})
	result.Logger.Debug().Msg("hidden")
	result.Logger.Info().Msg("Extracting to out/1.tif")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Extracting to out/1.tif")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestNewLoggerWithPath_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rasterclip.log")
	result := NewLoggerWithPath(Config{Level: "info", Output: OutputFile, File: path})
	require.True(t, result.UsingFile)
	assert.Equal(t, path, result.FilePath)

	result.Logger.Info().Msg("to file")
	require.NoError(t, result.Close())
	require.NoError(t, result.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to file"`)

	var buf bytes.Buffer
	PrintLogPathMessage(&buf, path)
	assert.Equal(t, "Logging to "+path+"\n", buf.String())
}

func TestNewLoggerWithPath_Fallback(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	var buf bytes.Buffer
	result := NewLoggerWithPath(Config{
		Output: OutputFile,
		File:   filepath.Join(blocker, "rasterclip.log"),
		Format: FormatJSON,
		Writer: &buf,
	})
	assert.False(t, result.UsingFile)
	assert.True(t, result.FallbackUsed)
	assert.NotEmpty(t, result.FallbackReason)

	result.Logger.Warn().Msg("still logged")
	assert.Contains(t, buf.String(), "still logged")

	var warn bytes.Buffer
	PrintFallbackWarning(&warn, result.FallbackReason)
	assert.True(t, strings.HasPrefix(warn.String(), "Warning:"))
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceIDFromContext(ctx))

	id := GetOrGenerateTraceID(ctx)
	assert.Len(t, id, 26)
	ctx = ContextWithTraceID(ctx, id)
	assert.Equal(t, id, GetOrGenerateTraceID(ctx))

	var buf bytes.Buffer
	logger := NewLogger(Config{Format: FormatJSON, Writer: &buf})
	ctx = logger.WithContext(ctx)
	FromContext(ctx).Info().Ctx(ctx).Msg("traced")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, id, line["trace_id"])
}

func TestFromContext_Disabled(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, zerolog.Disabled, l.GetLevel())
}

func TestAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	audit := NewAuditLogger(AuditLoggerConfig{Enabled: true, File: path})
	require.True(t, audit.Enabled())

	ctx := ContextWithAuditLogger(context.Background(), audit)
	start := time.Now()
	AuditLoggerFromContext(ctx).Log(ctx, *NewAuditEntry("extract", "T1").
		WithRecord("1", "written").
		WithOutput("out/1.tif").
		WithDuration(start))
	AuditLoggerFromContext(ctx).Log(ctx, *NewAuditEntry("extract", "T1").
		WithRecord("2", "MaskExtractionFailed").
		WithError("mask does not overlap source raster data"))
	AuditLoggerFromContext(ctx).Log(ctx, *NewAuditEntry("extract", "T1").
		WithParameters(map[string]string{"format": ".tif"}).
		WithSuccess(1, 1).
		WithDuration(start))
	require.NoError(t, audit.Close())
	require.NoError(t, audit.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var first, second, run map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &run))

	assert.Equal(t, "1", first["record_id"])
	assert.Equal(t, "out/1.tif", first["output"])
	assert.Equal(t, true, first["success"])
	assert.Equal(t, false, second["success"])
	assert.Equal(t, "MaskExtractionFailed", second["outcome"])
	assert.InDelta(t, 1, run["written"], 0)
	assert.Equal(t, map[string]any{"format": ".tif"}, run["parameters"])
}

func TestAuditLogger_Disabled(t *testing.T) {
	audit := NewAuditLogger(AuditLoggerConfig{Enabled: false, File: "ignored"})
	assert.False(t, audit.Enabled())
	audit.Log(context.Background(), *NewAuditEntry("extract", ""))
	assert.NoError(t, audit.Close())

	assert.False(t, AuditLoggerFromContext(context.Background()).Enabled())
}
