package fileops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Test helpers

func createTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", path, err)
	}
	return path
}

func readFileContent(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("Found temp file after copy: %s", entry.Name())
		}
	}
}

// Tests for AtomicCopy

func TestAtomicCopy(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	t.Run("basic copy operation", func(t *testing.T) {
		content := "Hello, atomic copy world!"
		srcPath := createTestFile(t, srcDir, "source.txt", content)
		destPath := filepath.Join(destDir, "destination.txt")

		if err := AtomicCopy(srcPath, destPath); err != nil {
			t.Fatalf("AtomicCopy failed: %v", err)
		}

		if !fileExists(destPath) {
			t.Error("Destination file was not created")
		}

		if copied := readFileContent(t, destPath); copied != content {
			t.Errorf("Content mismatch. Expected %q, got %q", content, copied)
		}
	})

	t.Run("overwrite existing file", func(t *testing.T) {
		srcPath := createTestFile(t, srcDir, "new_source.txt", "New content")
		destPath := createTestFile(t, destDir, "existing.txt", "Original content")

		if err := AtomicCopy(srcPath, destPath); err != nil {
			t.Fatalf("AtomicCopy failed: %v", err)
		}

		if copied := readFileContent(t, destPath); copied != "New content" {
			t.Errorf("Content not overwritten. Expected %q, got %q", "New content", copied)
		}
	})

	t.Run("keeps executable bit", func(t *testing.T) {
		srcPath := createTestFile(t, srcDir, "run.sh", "#!/bin/sh\n")
		if err := os.Chmod(srcPath, 0755); err != nil {
			t.Fatalf("Chmod failed: %v", err)
		}
		destPath := filepath.Join(destDir, "run.sh")

		if err := AtomicCopy(srcPath, destPath); err != nil {
			t.Fatalf("AtomicCopy failed: %v", err)
		}

		info, err := os.Stat(destPath)
		if err != nil {
			t.Fatalf("Stat failed: %v", err)
		}
		if info.Mode().Perm()&0100 == 0 {
			t.Errorf("Expected executable permissions, got %v", info.Mode().Perm())
		}
	})

	t.Run("empty file copy", func(t *testing.T) {
		srcPath := createTestFile(t, srcDir, "empty.txt", "")
		destPath := filepath.Join(destDir, "empty_copy.txt")

		if err := AtomicCopy(srcPath, destPath); err != nil {
			t.Fatalf("AtomicCopy failed: %v", err)
		}

		if copied := readFileContent(t, destPath); copied != "" {
			t.Errorf("Expected empty content, got %q", copied)
		}
	})

	assertNoTempFiles(t, destDir)
}

func TestAtomicCopyErrors(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	t.Run("non-existent source file", func(t *testing.T) {
		err := AtomicCopy(filepath.Join(srcDir, "nonexistent.txt"), filepath.Join(destDir, "dest.txt"))
		if err == nil {
			t.Fatal("Expected error for non-existent source file")
		}

		if !strings.Contains(err.Error(), "failed to open source file") {
			t.Errorf("Expected 'failed to open source file' error, got: %v", err)
		}
	})

	t.Run("non-existent destination directory", func(t *testing.T) {
		srcPath := createTestFile(t, srcDir, "source.txt", "content")

		err := AtomicCopy(srcPath, filepath.Join(destDir, "nonexistent", "dest.txt"))
		if err == nil {
			t.Fatal("Expected error for non-existent destination directory")
		}

		if !strings.Contains(err.Error(), "failed to create temporary file") {
			t.Errorf("Expected 'failed to create temporary file' error, got: %v", err)
		}
	})

	t.Run("source is directory", func(t *testing.T) {
		if err := AtomicCopy(t.TempDir(), filepath.Join(destDir, "dest.txt")); err == nil {
			t.Error("Expected error when source is directory")
		}
		assertNoTempFiles(t, destDir)
	})
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := AtomicWriteFile(path, []byte(`{"a":1}`), 0600); err != nil {
		t.Fatalf("AtomicWriteFile() unexpected error: %v", err)
	}

	if got := readFileContent(t, path); got != `{"a":1}` {
		t.Errorf("AtomicWriteFile() wrote %q", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected permissions 0600, got %v", info.Mode().Perm())
	}
	assertNoTempFiles(t, dir)
}

// Tests for CopyTree

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	createTestFile(t, src, "README.md", "# demo\n")
	createTestFile(t, src, filepath.Join("src", "pkg", "main.go"), "package main\n")
	if err := os.Symlink("src/pkg", filepath.Join(src, "pkg")); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "copy")
	if err := CopyTree(src, dest); err != nil {
		t.Fatalf("CopyTree() unexpected error: %v", err)
	}

	if got := readFileContent(t, filepath.Join(dest, "src", "pkg", "main.go")); got != "package main\n" {
		t.Errorf("CopyTree() copied %q", got)
	}

	isLink, err := IsSymlink(filepath.Join(dest, "pkg"))
	if err != nil {
		t.Fatalf("IsSymlink() unexpected error: %v", err)
	}
	if !isLink {
		t.Error("CopyTree() should recreate symlinks")
	}

	target, err := os.Readlink(filepath.Join(dest, "pkg"))
	if err != nil {
		t.Fatalf("Readlink failed: %v", err)
	}
	if target != "src/pkg" {
		t.Errorf("Symlink target = %q, want %q", target, "src/pkg")
	}
}

func TestTempSiblingAndReplaceDir(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "slot", "repository")
	createTestFile(t, dest, "old.txt", "old")

	staging, err := TempSibling(dest)
	if err != nil {
		t.Fatalf("TempSibling() unexpected error: %v", err)
	}
	if filepath.Dir(staging) != filepath.Dir(dest) {
		t.Errorf("TempSibling() = %s, want a sibling of %s", staging, dest)
	}

	createTestFile(t, staging, "new.txt", "new")

	if err := ReplaceDir(staging, dest); err != nil {
		t.Fatalf("ReplaceDir() unexpected error: %v", err)
	}

	if fileExists(filepath.Join(dest, "old.txt")) {
		t.Error("ReplaceDir() should drop previous content")
	}
	if got := readFileContent(t, filepath.Join(dest, "new.txt")); got != "new" {
		t.Errorf("ReplaceDir() content = %q", got)
	}
	if fileExists(staging) {
		t.Error("Staging directory should be gone after ReplaceDir()")
	}
}

// Tests for EnsureDirectoryExists

func TestEnsureDirectoryExists(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("create nested directories", func(t *testing.T) {
		dirPath := filepath.Join(tempDir, "nested", "deep", "directory")

		if err := EnsureDirectoryExists(dirPath); err != nil {
			t.Fatalf("EnsureDirectoryExists failed: %v", err)
		}

		info, err := os.Stat(dirPath)
		if err != nil {
			t.Fatalf("Nested directory was not created: %v", err)
		}

		if !info.IsDir() {
			t.Error("Created nested path is not a directory")
		}
	})

	t.Run("directory already exists", func(t *testing.T) {
		dirPath := filepath.Join(tempDir, "existing_dir")
		if err := os.Mkdir(dirPath, 0755); err != nil {
			t.Fatalf("Failed to create initial directory: %v", err)
		}

		if err := EnsureDirectoryExists(dirPath); err != nil {
			t.Errorf("EnsureDirectoryExists failed on existing directory: %v", err)
		}
	})

	t.Run("file exists with same name", func(t *testing.T) {
		filePath := createTestFile(t, tempDir, "file_blocking_dir", "content")

		if err := EnsureDirectoryExists(filePath); err == nil {
			t.Error("Expected error when file exists with same name as directory")
		}
	})
}

func TestIsDirEmpty(t *testing.T) {
	dir := t.TempDir()

	empty, err := IsDirEmpty(dir)
	if err != nil {
		t.Fatalf("IsDirEmpty() unexpected error: %v", err)
	}
	if !empty {
		t.Error("IsDirEmpty() = false for a fresh directory")
	}

	createTestFile(t, dir, "a.txt", "a")
	empty, err = IsDirEmpty(dir)
	if err != nil {
		t.Fatalf("IsDirEmpty() unexpected error: %v", err)
	}
	if empty {
		t.Error("IsDirEmpty() = true for a populated directory")
	}

	if _, err := IsDirEmpty(filepath.Join(dir, "missing")); err == nil {
		t.Error("IsDirEmpty() expected error for missing directory")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandPath("~/templates"); got != filepath.Join(home, "templates") {
		t.Errorf("ExpandPath() = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath() = %q, want unchanged", got)
	}
}
