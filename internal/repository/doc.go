// Package repository resolves template locations to mounted, read-only
// repositories.
//
// # Architecture
//
// A location is a filesystem path or a URL. Resolution runs in three layers:
//
//   - Fetcher: matches a URL and retrieves it into a cache directory handed
//     out by a Store, honoring a FetchMode (always, auto, never)
//   - Storage: maps (URL, provider) pairs to hashed cache slots with a small
//     config.json record, and lists or prunes them
//   - Provider: turns a location and an optional revision into a Repository,
//     either directly from a local path (LocalProvider) or by fetching first
//     (RemoteProvider), then mounting a filesystem over the result
//
// A Registry holds provider factories in resolution order and is built once
// per command:
//
//	storage := repository.NewStorage(cacheDir)
//	registry := repository.NewRegistry(repository.DefaultFactories(opts), storage, repository.FetchAuto, logger)
//	repo, err := registry.Resolve(ctx, "gh:owner/template", "v1.2.0")
//	if err != nil {
//	    return fmt.Errorf("failed to resolve template: %w", err)
//	}
//	defer repo.Close()
//
// A scheme of the form "name+scheme" (for example "hg+https://...") selects a
// single provider by name.
//
// # Remote access
//
// git repositories are fetched with go-git into bare mirrors. Public access is
// tried first; on an authentication failure over HTTP the token stored for the
// host in the OS keyring is used. Mercurial repositories are cloned with the
// hg client. Archives can come from file, http(s), ftp, s3 and sftp URLs.
//
// Errors are typed: *UnknownLocationError, *RevisionNotFoundError,
// *FetchError and *StorageAllocationError. Nothing is retried.
package repository
