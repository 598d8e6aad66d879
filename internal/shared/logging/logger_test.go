package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.lines = append(r.lines, "D:"+format) }
func (r *recordingLogger) Info(format string, args ...any)  { r.lines = append(r.lines, "I:"+format) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.lines = append(r.lines, "W:"+format) }
func (r *recordingLogger) Error(format string, args ...any) { r.lines = append(r.lines, "E:"+format) }

func TestOrNopHandlesTypedNil(t *testing.T) {
	var typed *recordingLogger
	require.True(t, IsNil(typed))
	require.NotPanics(t, func() { OrNop(typed).Info("ignored") })
}

func TestMultiFlattensAndSkipsNil(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	logger := Multi(a, nil, Multi(b))
	logger.Warn("careful")

	require.Equal(t, []string{"W:careful"}, a.lines)
	require.Equal(t, []string{"W:careful"}, b.lines)
	require.Same(t, a, Multi(a))
}

func TestSetupJSONWritesComponent(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	closer, err := Setup(Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger := With(NewComponentLogger("engine"), "task_id", "task-1")
	logger.Debug("step %d done", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	require.Equal(t, "step 3 done", record["msg"])
	require.Equal(t, "engine", record["component"])
	require.Equal(t, "task-1", record["task_id"])
}

func TestSetupFansOutToFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "agentloop.log")
	closer, err := Setup(Options{Level: "info", NoColor: true, Output: &console, File: path})
	require.NoError(t, err)

	NewComponentLogger("server").Info("listening on %s", ":8080")
	NewComponentLogger("server").Debug("hidden")
	require.NoError(t, closer.Close())

	require.Contains(t, console.String(), "listening on :8080")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "listening on :8080")
	require.False(t, strings.Contains(string(data), "hidden"))
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	require.Error(t, SetLevel("verbose"))
	require.NoError(t, SetLevel("info"))
}
