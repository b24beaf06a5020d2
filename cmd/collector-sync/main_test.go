package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kelsos/collector-sync/internal/config"
	"github.com/kelsos/collector-sync/internal/models"
	"github.com/kelsos/collector-sync/internal/storage"
)

func TestParseFields(t *testing.T) {
	data, err := parseFields([]string{"1=jgkf", "count=3", "checked=true", "note=a=b"})
	if err != nil {
		t.Fatalf("parseFields failed: %v", err)
	}

	if data["1"] != "jgkf" {
		t.Errorf("Expected string value, got %v", data["1"])
	}
	if data["count"] != 3.0 {
		t.Errorf("Expected numeric value, got %v", data["count"])
	}
	if data["checked"] != true {
		t.Errorf("Expected boolean value, got %v", data["checked"])
	}
	if data["note"] != "a=b" {
		t.Errorf("Expected value to keep later separators, got %v", data["note"])
	}
}

func TestParseFieldsRejectsMalformed(t *testing.T) {
	for _, field := range []string{"novalue", "=value"} {
		if _, err := parseFields([]string{field}); err == nil {
			t.Errorf("Expected error for %q", field)
		}
	}
}

func TestPrintTasksOldestFirst(t *testing.T) {
	tasks := models.Tasks{
		"newer": {ID: "newer", State: models.TaskStatePending, CollectedOn: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
		"older": {ID: "older", State: models.TaskStateDone, CollectedOn: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	printTasks(&buf, tasks)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "older") || !strings.Contains(lines[0], "done") {
		t.Errorf("Expected older done task first, got %q", lines[0])
	}
}

func TestPrintTasksEmpty(t *testing.T) {
	var buf bytes.Buffer
	printTasks(&buf, models.Tasks{})

	if !strings.Contains(buf.String(), "No saved tasks") {
		t.Errorf("Expected empty message, got %q", buf.String())
	}
}

func TestLogPath(t *testing.T) {
	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()

	got, err := logPath(cfg)
	if err != nil {
		t.Fatalf("logPath failed: %v", err)
	}
	if want := filepath.Join(cfg.DataDir, "logs"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	cfg.LogDir = filepath.Join(t.TempDir(), "elsewhere")
	got, err = logPath(cfg)
	if err != nil {
		t.Fatalf("logPath failed: %v", err)
	}
	if got != cfg.LogDir {
		t.Errorf("Expected absolute log dir to be kept, got %s", got)
	}
}

func TestShowTask(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	task := models.NewTask(map[string]any{"species": "oak"}, models.Geometry{Latitude: 1, Longitude: 2})
	if err := store.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	var buf bytes.Buffer
	if err := showTask(context.Background(), &buf, store, task.ID); err != nil {
		t.Fatalf("showTask failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"species": "oak"`) || !strings.Contains(buf.String(), task.ID) {
		t.Errorf("Expected task JSON, got %s", buf.String())
	}

	err = showTask(context.Background(), &buf, store, "missing")
	if err == nil || !strings.Contains(err.Error(), "no saved task with id missing") {
		t.Errorf("Expected not found error, got %v", err)
	}
}
