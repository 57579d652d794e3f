package template

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cutty/internal/filesystem"
	"cutty/pkg/fileops"
)

// File is a rendered project entry. It is one of RegularFile, Executable or
// Symlink.
type File interface {
	FilePath() filesystem.PurePath
	isFile()
}

// RegularFile is a file written with mode 0644.
type RegularFile struct {
	Path filesystem.PurePath
	Data []byte
}

// Executable is a file written with mode 0755.
type Executable struct {
	Path filesystem.PurePath
	Data []byte
}

// Symlink is a symbolic link. Target is relative to the project root.
type Symlink struct {
	Path   filesystem.PurePath
	Target filesystem.PurePath
}

func (f RegularFile) FilePath() filesystem.PurePath { return f.Path }
func (f Executable) FilePath() filesystem.PurePath  { return f.Path }
func (f Symlink) FilePath() filesystem.PurePath     { return f.Path }

func (RegularFile) isFile() {}
func (Executable) isFile()  {}
func (Symlink) isFile()     {}

// WriteFiles writes files below dir, creating parent directories. Paths
// that would leave dir are rejected.
func WriteFiles(dir string, files []File) error {
	for _, file := range files {
		p := file.FilePath()
		if p.IsRoot() || slices.Contains(p.Parts(), "..") {
			return fmt.Errorf("refusing to write %q outside the project", p)
		}

		target := filepath.Join(dir, filepath.FromSlash(p.String()))
		if err := fileops.EnsureDirectoryExists(filepath.Dir(target)); err != nil {
			return err
		}

		switch f := file.(type) {
		case RegularFile:
			if err := fileops.AtomicWriteFile(target, f.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", p, err)
			}
		case Executable:
			if err := fileops.AtomicWriteFile(target, f.Data, 0755); err != nil {
				return fmt.Errorf("failed to write %s: %w", p, err)
			}
		case Symlink:
			linkTarget, ok := normalize(f.Target)
			if !ok {
				return fmt.Errorf("symlink %s points outside the project", p)
			}
			os.Remove(target)
			if err := os.Symlink(filepath.FromSlash(relativeLink(f.Path, linkTarget)), target); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", p, err)
			}
		}
	}
	return nil
}

// relativeLink expresses target, a normalized path relative to the project
// root, as link text relative to the directory holding link.
func relativeLink(link, target filesystem.PurePath) string {
	from := link.Parent().Parts()
	to := target.Parts()

	common := 0
	for common < len(from) && common < len(to) && from[common] == to[common] {
		common++
	}

	parts := make([]string, 0, len(from)-common+len(to)-common)
	for range len(from) - common {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

// normalize folds ".." segments lexically. It reports false when p climbs
// above its first segment.
func normalize(p filesystem.PurePath) (filesystem.PurePath, bool) {
	var parts []string
	for _, part := range p.Parts() {
		if part == ".." {
			if len(parts) == 0 {
				return filesystem.PurePath{}, false
			}
			parts = parts[:len(parts)-1]
			continue
		}
		parts = append(parts, part)
	}
	return filesystem.NewPurePath(parts...), true
}
