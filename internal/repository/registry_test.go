package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cutty/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingProvider accepts every location and records what it was given.
type recordingProvider struct {
	name string
	seen *[]string
}

func (p recordingProvider) Name() string { return p.name }

func (p recordingProvider) Provide(_ context.Context, loc Location, _ string) (*Repository, bool, error) {
	*p.seen = append(*p.seen, p.name+" "+loc.String())
	return &Repository{Name: p.name}, true, nil
}

func recordingFactories(seen *[]string, names ...string) []ProviderFactory {
	factories := make([]ProviderFactory, len(names))
	for i, name := range names {
		factories[i] = ProviderFactory{
			Name: name,
			New: func(Store, FetchMode) Provider {
				return recordingProvider{name: name, seen: seen}
			},
		}
	}
	return factories
}

func TestRegistry_NamedSchemeDispatch(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "second+https://example.com/owner/template", want: "second https://example.com/owner/template"},
		{raw: "first+ssh://git@example.com/template.git", want: "first ssh://git@example.com/template.git"},
		{raw: "second+file:///srv/template", want: "second file:///srv/template"},
		{raw: "second+file:template.zip", want: "second file:template.zip"},
		{raw: "https://example.com/template", want: "first https://example.com/template"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var seen []string
			registry := NewRegistry(recordingFactories(&seen, "first", "second"), nil, FetchAuto, nil)

			repo, err := registry.Resolve(context.Background(), tt.raw, "")
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			assert.Equal(t, []string{tt.want}, seen)
			assert.NotNil(t, repo)
		})
	}
}

func TestRegistry_UnknownProviderName(t *testing.T) {
	var seen []string
	registry := NewRegistry(recordingFactories(&seen, "first"), nil, FetchAuto, nil)

	_, err := registry.Resolve(context.Background(), "nope+https://example.com/x", "")

	var unknown *UnknownLocationError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Provider)
	assert.Empty(t, seen)
}

func newDefaultRegistry(t *testing.T, mode FetchMode) *Registry {
	t.Helper()
	logger, _ := logging.NewTestLogger()
	storage := NewStorage(t.TempDir(), WithStorageLogger(logger))
	return NewRegistry(DefaultFactories(Options{Logger: logger}), storage, mode, logger)
}

func TestRegistry_DefaultOrder(t *testing.T) {
	registry := newDefaultRegistry(t, FetchAuto)
	assert.Equal(t, []string{"zip", "git", "hg", "local"}, registry.Names())
}

func TestRegistry_LocalLocations(t *testing.T) {
	ctx := context.Background()
	registry := newDefaultRegistry(t, FetchAuto)

	t.Run("plain directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "python-template")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cookiecutter.json"), []byte("{}"), 0o644))

		repo, err := registry.Resolve(ctx, dir, "")
		require.NoError(t, err)
		defer repo.Close()

		assert.Equal(t, "python-template", repo.Name)
		assert.Empty(t, repo.Revision)
		assert.True(t, repo.Path.Join("cookiecutter.json").IsFile())
	})

	t.Run("plain directory with a revision", func(t *testing.T) {
		_, err := registry.Resolve(ctx, t.TempDir(), "v1")
		var notFound *RevisionNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("git working copy", func(t *testing.T) {
		dir, _ := newTemplateRepository(t)

		repo, err := registry.Resolve(ctx, dir, "v1.0.0")
		require.NoError(t, err)
		defer repo.Close()

		assert.Equal(t, "v1.0.0", repo.Revision)
		text, err := repo.Path.Join("README.md").ReadText()
		require.NoError(t, err)
		assert.Equal(t, "# {{ project }}\n", text)
	})

	t.Run("git working copy with a missing revision", func(t *testing.T) {
		dir, _ := newTemplateRepository(t)

		_, err := registry.Resolve(ctx, dir, "v7")
		var notFound *RevisionNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, dir, notFound.Location)
	})

	t.Run("zip archive", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "template.zip")
		writeZip(t, archive, map[string]string{"template-main/README.md": "zipped"})

		repo, err := registry.Resolve(ctx, archive, "")
		require.NoError(t, err)
		defer repo.Close()

		assert.Equal(t, "template", repo.Name)
		text, err := repo.Path.Join("README.md").ReadText()
		require.NoError(t, err)
		assert.Equal(t, "zipped", text)
	})

	t.Run("file url naming a plain directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "template")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

		repo, err := registry.Resolve(ctx, fileURL(dir).String(), "")
		if err != nil {
			t.Fatalf("Resolve() unexpected error: %v", err)
		}
		defer repo.Close()

		assert.Equal(t, "template", repo.Name)
		assert.True(t, repo.Path.Join("a.txt").IsFile())
	})

	t.Run("file url naming nothing", func(t *testing.T) {
		raw := fileURL(filepath.Join(t.TempDir(), "missing")).String()

		_, err := registry.Resolve(ctx, raw, "")
		var unknown *UnknownLocationError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, raw, unknown.Location)
	})

	t.Run("named local provider over a file url", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

		repo, err := registry.Resolve(ctx, "local+"+fileURL(dir).String(), "")
		require.NoError(t, err)
		defer repo.Close()
		assert.True(t, repo.Path.Join("a.txt").IsFile())
	})
}

func TestRegistry_RemoteLocations(t *testing.T) {
	ctx := context.Background()

	t.Run("git over a file url", func(t *testing.T) {
		registry := newDefaultRegistry(t, FetchAlways)
		src, _ := newTemplateRepository(t)

		repo, err := registry.Resolve(ctx, fileURL(src).String(), "")
		require.NoError(t, err)
		defer repo.Close()

		text, err := repo.Path.Join("README.md").ReadText()
		require.NoError(t, err)
		assert.Equal(t, "# {{ project }}!\n", text)

		records, err := registry.storage.List()
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "git", records[0].Provider)
	})

	t.Run("zip over http", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "template.zip")
		writeZip(t, archive, map[string]string{"README.md": "downloaded"})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, archive)
		}))
		defer server.Close()

		registry := newDefaultRegistry(t, FetchAuto)
		repo, err := registry.Resolve(ctx, server.URL+"/template.zip", "")
		require.NoError(t, err)
		defer repo.Close()

		text, err := repo.Path.Join("README.md").ReadText()
		require.NoError(t, err)
		assert.Equal(t, "downloaded", text)
	})

	t.Run("never mode without a cached copy", func(t *testing.T) {
		registry := newDefaultRegistry(t, FetchNever)
		src, _ := newTemplateRepository(t)

		_, err := registry.Resolve(ctx, fileURL(src).String(), "")
		assert.ErrorContains(t, err, "has not been fetched yet")
	})

	t.Run("unknown location", func(t *testing.T) {
		registry := newDefaultRegistry(t, FetchAuto)

		_, err := registry.Resolve(ctx, "ftp://example.com/template", "")
		var unknown *UnknownLocationError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "ftp://example.com/template", unknown.Location)
	})
}

func TestSelectFactories(t *testing.T) {
	factories := DefaultFactories(Options{})

	selected, err := SelectFactories(factories, []string{"local", "git"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "local", selected[0].Name)
	assert.Equal(t, "git", selected[1].Name)

	all, err := SelectFactories(factories, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = SelectFactories(factories, []string{"svn"})
	assert.Error(t, err)
}
