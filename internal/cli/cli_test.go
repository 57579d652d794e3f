package cli

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"cutty/internal/config"
	"cutty/internal/gitutil"
	"cutty/internal/logging"
	"cutty/internal/project"
	"cutty/internal/repository"
	"cutty/internal/template"
)

// run executes the command line with an isolated config file.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.ConfigPathEnv, filepath.Join(t.TempDir(), "config.yaml"))

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func TestCreateAndUpdate(t *testing.T) {
	if !gitutil.Available() {
		t.Skip("git is not installed")
	}

	templateDir := filepath.Join(t.TempDir(), "python-template")
	writeFile(t, templateDir, "README.md", "# {{ project }}\n")

	outDir := t.TempDir()
	cacheDir := t.TempDir()

	out, err := run(t, "", "create", templateDir, "project=demo", "-o", outDir, "--cache-dir", cacheDir)
	if err != nil {
		t.Fatalf("create unexpected error: %v", err)
	}
	projectDir := filepath.Join(outDir, "python-template")
	assert.Contains(t, out, "Created")
	assert.Equal(t, "# demo\n", readFile(t, projectDir, "README.md"))
	assert.Contains(t, readFile(t, projectDir, project.ConfigFile), `"project": "demo"`)

	writeFile(t, templateDir, "README.md", "# {{ project }}\n\nUpdated.\n")

	out, err = run(t, "", "update", "-C", projectDir, "--cache-dir", cacheDir)
	if err != nil {
		t.Fatalf("update unexpected error: %v", err)
	}
	assert.Contains(t, out, "Project updated")
	assert.Equal(t, "# demo\n\nUpdated.\n", readFile(t, projectDir, "README.md"))

	_, err = run(t, "", "update", "-C", projectDir, "--continue")
	assert.ErrorIs(t, err, project.ErrNoUpdateInProgress)

	_, err = run(t, "", "update", "-C", projectDir, "--skip", "--abort")
	assert.Error(t, err)
}

func TestCreate_RecordsTemplateRevision(t *testing.T) {
	if !gitutil.Available() {
		t.Skip("git is not installed")
	}
	ctx := context.Background()
	logger, _ := logging.NewTestLogger()

	templateDir := filepath.Join(t.TempDir(), "tagged-template")
	require.NoError(t, os.MkdirAll(templateDir, 0o755))
	writeFile(t, templateDir, "README.md", "# {{ project }}\n")
	tpl, err := gitutil.Init(templateDir, "main", logger)
	require.NoError(t, err)
	head, err := tpl.CommitAll(ctx, "Initial template")
	require.NoError(t, err)
	goRepo, err := git.PlainOpen(templateDir)
	require.NoError(t, err)
	_, err = goRepo.CreateTag("v1.0.0", head, nil)
	require.NoError(t, err)

	outDir := t.TempDir()
	out, err := run(t, "", "create", templateDir, "project=demo", "-o", outDir, "--cache-dir", t.TempDir())
	if err != nil {
		t.Fatalf("create unexpected error: %v", err)
	}
	assert.Contains(t, out, "at v1.0.0")

	projectRepo, err := gitutil.Open(filepath.Join(outDir, "tagged-template"), logger)
	require.NoError(t, err)
	projectHead, err := projectRepo.Head()
	require.NoError(t, err)
	commit, err := projectRepo.Commit(projectHead)
	require.NoError(t, err)
	assert.Equal(t, "Initial import (v1.0.0)\n", commit.Message)
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "Update project template", commitMessage(updateMessage, &project.Rendered{}))
	assert.Equal(t, "Update project template (3f2a9c1)", commitMessage(updateMessage, &project.Rendered{Revision: "3f2a9c1"}))
	assert.Equal(t, " at v2", revisionSuffix(&project.Rendered{Revision: "v2"}))
}

func TestInvalidFetchMode(t *testing.T) {
	_, err := run(t, "", "cache", "list", "--fetch-mode", "sometimes", "--cache-dir", t.TempDir())
	assert.Error(t, err)
}

func TestCacheCommands(t *testing.T) {
	cacheDir := t.TempDir()

	out, err := run(t, "", "cache", "list", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "is empty")

	old := time.Now().Add(-72 * time.Hour).UTC()
	storage := repository.NewStorage(cacheDir, repository.WithClock(func() time.Time { return old }))
	u, err := url.Parse("https://example.com/template.git")
	require.NoError(t, err)
	_, err = storage.Allocate(u, "git")
	require.NoError(t, err)

	out, err = run(t, "", "cache", "list", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "https://example.com/template.git")
	assert.Contains(t, out, "git")
	assert.Contains(t, out, "3d ago")

	out, err = run(t, "", "cache", "clean", "--older-than", "96h", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to remove")

	out, err = run(t, "", "cache", "clean", "--older-than", "1h", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 cached template(s)")

	records, err := storage.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAuthCommands(t *testing.T) {
	keyring.MockInit()

	out, err := run(t, "", "auth", "login", "--host", "example.com", "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored token for")

	cm := repository.NewCredentialManager()
	token, err := cm.GetToken("example.com")
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	_, err = run(t, "from-stdin\n", "auth", "login", "--host", "example.com")
	require.NoError(t, err)
	token, err = cm.GetToken("example.com")
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", token)

	_, err = run(t, "", "auth", "logout", "--host", "example.com")
	require.NoError(t, err)
	assert.False(t, cm.HasToken("example.com"))

	_, err = run(t, "", "auth", "login")
	assert.Error(t, err)
}

func TestMergeBindings(t *testing.T) {
	merged := mergeBindings(
		[]template.Binding{{Name: "a", Value: template.String("1")}, {Name: "b", Value: template.String("2")}},
		[]template.Binding{{Name: "b", Value: template.String("x")}, {Name: "c", Value: template.String("3")}},
	)
	assert.Equal(t, []template.Binding{
		{Name: "a", Value: template.String("1")},
		{Name: "b", Value: template.String("x")},
		{Name: "c", Value: template.String("3")},
	}, merged)
}

func TestDefaultProjectName(t *testing.T) {
	tests := map[string]string{
		"/tmp/templates/python/":                "python",
		"https://example.com/owner/repo.git":    "repo",
		"gh:owner/template":                     "template",
		"https://example.com/archive/site.zip":  "site",
		"hg+https://example.com/repos/template": "template",
	}
	for location, want := range tests {
		assert.Equal(t, want, defaultProjectName(location), location)
	}
}

func TestLinkConfig(t *testing.T) {
	t.Run("location and bindings", func(t *testing.T) {
		cfg, err := linkConfig(t.TempDir(), []string{"gh:owner/repo", "project=demo"})
		require.NoError(t, err)
		assert.Equal(t, "gh:owner/repo", cfg.Template.Location)
		assert.Equal(t, []template.Binding{{Name: "project", Value: template.String("demo")}}, cfg.Bindings)
	})

	t.Run("legacy bookkeeping file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, project.LegacyConfigFile, `{"_template": "gh:owner/old", "project": "demo"}`)

		cfg, err := linkConfig(dir, []string{"license=MIT"})
		require.NoError(t, err)
		assert.Equal(t, "gh:owner/old", cfg.Template.Location)
		assert.Equal(t, []template.Binding{
			{Name: "project", Value: template.String("demo")},
			{Name: "license", Value: template.String("MIT")},
		}, cfg.Bindings)
	})

	t.Run("nothing to link to", func(t *testing.T) {
		_, err := linkConfig(t.TempDir(), nil)
		assert.Error(t, err)
	})
}

func TestRenderError(t *testing.T) {
	msg := renderError(&project.MergeConflictError{Paths: []string{"README.md", "src/main.go"}})
	assert.Contains(t, msg, "README.md")
	assert.Contains(t, msg, "src/main.go")
	assert.Contains(t, msg, "--continue")

	assert.Contains(t, renderError(errors.New("boom")), "boom")
}
