package backup

import (
	"archive/zip"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestShouldIncludeInBackup(t *testing.T) {
	tests := []struct {
		name    string
		relPath string
		isDir   bool
		want    bool
	}{
		{"tasks dir", "tasks", true, true},
		{"task file", filepath.Join("tasks", "1.json"), false, true},
		{"temp file", filepath.Join("tasks", "1.json.tmp"), false, false},
		{"nested dir", filepath.Join("tasks", "old"), true, false},
		{"logs dir", "logs", true, false},
		{"stray file", "notes.txt", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldIncludeInBackup(tt.relPath, tt.isDir); got != tt.want {
				t.Errorf("ShouldIncludeInBackup(%q, %v) = %v, want %v", tt.relPath, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestCreateBackupZipsTaskFiles(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := t.TempDir()

	files := map[string]string{
		filepath.Join("tasks", "1.json"):     `{"id":"1"}`,
		filepath.Join("tasks", "2.json.tmp"): `{"id":`,
		filepath.Join("logs", "run.log"):     "log line",
	}
	for rel, content := range files {
		path := filepath.Join(dataDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}

	backupFile, err := CreateBackup(dataDir, backupDir)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if filepath.Dir(backupFile) != backupDir {
		t.Errorf("Expected backup in %s, got %s", backupDir, backupFile)
	}

	reader, err := zip.OpenReader(backupFile)
	if err != nil {
		t.Fatalf("Failed to open backup: %v", err)
	}
	defer reader.Close()

	var names []string
	for _, f := range reader.File {
		names = append(names, f.Name)
	}

	if !slices.Contains(names, "tasks/1.json") {
		t.Errorf("Expected tasks/1.json in backup, got %v", names)
	}
	for _, unwanted := range []string{"tasks/2.json.tmp", "logs/run.log"} {
		if slices.Contains(names, unwanted) {
			t.Errorf("Expected %s to be skipped, got %v", unwanted, names)
		}
	}
}
