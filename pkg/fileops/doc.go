// Package fileops provides atomic file and directory operations.
//
// Fetchers use these helpers to populate cache slots: content is written into
// a temporary sibling of the destination and moved into place only once it is
// complete, so a failed or interrupted fetch never leaves a half-written slot
// behind.
//
// # Atomic Operations
//
// Use AtomicCopy() and AtomicWriteFile() for single files:
//
//	err := fileops.AtomicCopy(srcPath, destPath)
//	// Destination appears atomically or remains unchanged on failure
//
// Use TempSibling() and ReplaceDir() for whole trees:
//
//	staging, err := fileops.TempSibling(dest)
//	if err != nil {
//	    return err
//	}
//	defer os.RemoveAll(staging)
//	if err := fileops.CopyTree(src, staging); err != nil {
//	    return err
//	}
//	return fileops.ReplaceDir(staging, dest)
//
// # Directory Operations
//
// EnsureDirectoryExists() creates directories safely with proper permissions (0755).
package fileops
