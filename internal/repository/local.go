package repository

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cutty/internal/filesystem"
	"cutty/internal/filesystem/disk"
	"cutty/internal/filesystem/zipfs"
)

// isDirectory reports whether p is an existing directory.
func isDirectory(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// isZipFile reports whether p is a regular file holding a zip archive.
func isZipFile(p string) bool {
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()

	_, err = zip.NewReader(f, info.Size())
	return err == nil
}

// mountDisk mounts a plain directory. Directories carry no revisions, so a
// requested one is reported as not found.
func mountDisk(_ context.Context, dir, revision string) (filesystem.Path, io.Closer, error) {
	if revision != "" {
		return filesystem.Path{}, nil, &RevisionNotFoundError{Revision: revision, Location: dir}
	}

	fsys, err := disk.New(dir)
	if err != nil {
		return filesystem.Path{}, nil, err
	}
	return filesystem.Root(fsys), fsys, nil
}

// mountZip mounts a zip archive. An archive whose only top-level entry is a
// directory is mounted at that directory, matching the layout of archives
// exported by hosting services.
func mountZip(_ context.Context, archive, revision string) (filesystem.Path, io.Closer, error) {
	if revision != "" {
		return filesystem.Path{}, nil, &RevisionNotFoundError{Revision: revision, Location: archive}
	}

	fsys, err := zipfs.Open(archive)
	if err != nil {
		return filesystem.Path{}, nil, fmt.Errorf("failed to open archive %s: %w", archive, err)
	}

	root := filesystem.Root(fsys)
	children, err := root.Iterdir()
	if err != nil {
		return filesystem.Path{}, nil, errors.Join(err, fsys.Close())
	}
	if len(children) == 1 && children[0].IsDir() && !children[0].IsSymlink() {
		root = children[0]
	}
	return root, fsys, nil
}
