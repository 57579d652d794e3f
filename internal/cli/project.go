package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cutty/internal/filesystem"
	"cutty/internal/filesystem/disk"
	"cutty/internal/project"
	"cutty/internal/template"
	"cutty/pkg/fileops"
)

const (
	createMessage = "Initial import"
	updateMessage = "Update project template"
	linkMessage   = "Link to project template"
)

// templateFlags are shared by commands that select a template.
type templateFlags struct {
	checkout  string
	directory string
}

func (f *templateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.checkout, "checkout", "c", "", "template revision (branch, tag or commit)")
	cmd.Flags().StringVar(&f.directory, "directory", "", "template subdirectory")
}

// apply overrides the template revision and directory when the flags are set.
func (f *templateFlags) apply(cmd *cobra.Command, t *project.Template) {
	if cmd.Flags().Changed("checkout") {
		t.Revision = optional(f.checkout)
	}
	if cmd.Flags().Changed("directory") {
		t.Directory = optional(f.directory)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseBindings(args []string) ([]template.Binding, error) {
	bindings := make([]template.Binding, 0, len(args))
	for _, arg := range args {
		b, err := template.ParseBinding(arg)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

// mergeBindings replaces bindings with overrides of the same name and
// appends the others.
func mergeBindings(bindings, overrides []template.Binding) []template.Binding {
	merged := append([]template.Binding{}, bindings...)
	for _, o := range overrides {
		replaced := false
		for i := range merged {
			if merged[i].Name == o.Name {
				merged[i].Value = o.Value
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, o)
		}
	}
	return merged
}

func readProjectConfig(dir string) (*project.Config, error) {
	fsys, err := disk.New(dir)
	if err != nil {
		return nil, err
	}
	defer fsys.Close()

	return project.ReadConfig(filesystem.Root(fsys))
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		flags     templateFlags
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "create LOCATION [NAME=VALUE...]",
		Short: "Create a project from a template",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindings, err := parseBindings(args[1:])
			if err != nil {
				return err
			}
			registry, err := a.registry()
			if err != nil {
				return err
			}

			cfg := project.Config{
				Template: project.Template{Location: args[0]},
				Bindings: bindings,
			}
			flags.apply(cmd, &cfg.Template)

			ctx := cmd.Context()
			rendered, err := project.Render(ctx, registry, cfg)
			if err != nil {
				return err
			}

			name := rendered.Name
			if name == "" {
				name = defaultProjectName(args[0])
			}
			dir := filepath.Join(fileops.ExpandPath(outputDir), name)

			if _, err := project.Create(ctx, dir, commitMessage(createMessage, rendered), rendered.Static(), a.logger); err != nil {
				return err
			}
			fmt.Fprintln(a.out, renderSuccess("Created %s%s", pathStyle.Render(dir), revisionSuffix(rendered)))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "parent directory of the new project")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		flags      templateFlags
		projectDir string
		doContinue bool
		doSkip     bool
		doAbort    bool
	)

	cmd := &cobra.Command{
		Use:   "update [NAME=VALUE...]",
		Short: "Apply template changes to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, err := project.Open(projectDir, a.logger)
			if err != nil {
				return err
			}

			switch {
			case doContinue:
				return a.report(repo.Continue(ctx), "Update completed")
			case doSkip:
				return a.report(repo.Skip(ctx), "Update skipped")
			case doAbort:
				return a.report(repo.Abort(ctx), "Update aborted")
			}

			cfg, err := readProjectConfig(projectDir)
			if err != nil {
				return err
			}
			overrides, err := parseBindings(args)
			if err != nil {
				return err
			}
			cfg.Bindings = mergeBindings(cfg.Bindings, overrides)
			flags.apply(cmd, &cfg.Template)

			registry, err := a.registry()
			if err != nil {
				return err
			}
			rendered, err := project.Render(ctx, registry, *cfg)
			if err != nil {
				return err
			}
			err = repo.Update(ctx, commitMessage(updateMessage, rendered), rendered.Static())
			return a.report(err, "Project updated"+revisionSuffix(rendered))
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&projectDir, "cwd", "C", ".", "project directory")
	cmd.Flags().BoolVar(&doContinue, "continue", false, "finish an update after resolving conflicts")
	cmd.Flags().BoolVar(&doSkip, "skip", false, "skip the conflicting update")
	cmd.Flags().BoolVar(&doAbort, "abort", false, "abandon the conflicting update")
	cmd.MarkFlagsMutuallyExclusive("continue", "skip", "abort")
	return cmd
}

func newLinkCmd(a *app) *cobra.Command {
	var (
		flags      templateFlags
		projectDir string
	)

	cmd := &cobra.Command{
		Use:   "link [LOCATION] [NAME=VALUE...]",
		Short: "Link an existing project to a template",
		Long: `link records a template for a project that was not created by cutty, so
later updates can be applied. Without LOCATION the template recorded in the
project's bookkeeping file is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := linkConfig(projectDir, args)
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg.Template)

			repo, err := project.Open(projectDir, a.logger)
			if err != nil {
				return err
			}
			registry, err := a.registry()
			if err != nil {
				return err
			}
			rendered, err := project.Render(ctx, registry, *cfg)
			if err != nil {
				return err
			}
			err = repo.Link(ctx, commitMessage(linkMessage, rendered), rendered.Static())
			return a.report(err, "Project linked"+revisionSuffix(rendered))
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&projectDir, "cwd", "C", ".", "project directory")
	return cmd
}

// linkConfig builds the config for link. A first argument that is not a
// binding is the template location; otherwise the existing bookkeeping
// file names the template.
func linkConfig(projectDir string, args []string) (*project.Config, error) {
	var location string
	if len(args) > 0 {
		if _, err := template.ParseBinding(args[0]); err != nil {
			location, args = args[0], args[1:]
		}
	}

	overrides, err := parseBindings(args)
	if err != nil {
		return nil, err
	}

	existing, err := readProjectConfig(projectDir)
	if err != nil && !errors.Is(err, project.ErrNoConfig) {
		return nil, err
	}

	switch {
	case existing == nil && location == "":
		return nil, errors.New("no template location given and the project has none recorded")
	case existing == nil:
		return &project.Config{Template: project.Template{Location: location}, Bindings: overrides}, nil
	case location != "":
		existing.Template = project.Template{Location: location}
	}
	existing.Bindings = mergeBindings(existing.Bindings, overrides)
	return existing, nil
}

// defaultProjectName derives a directory name from a template location.
func defaultProjectName(location string) string {
	name := filepath.Base(strings.TrimRight(location, "/"))
	for _, suffix := range []string{".git", ".zip", ".ZIP"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return name
}

// commitMessage names the rendered template revision in the commit subject.
func commitMessage(subject string, rendered *project.Rendered) string {
	if rendered.Revision == "" {
		return subject
	}
	return fmt.Sprintf("%s (%s)", subject, rendered.Revision)
}

func revisionSuffix(rendered *project.Rendered) string {
	if rendered.Revision == "" {
		return ""
	}
	return " at " + rendered.Revision
}

// report prints success for a nil error and returns err otherwise.
func (a *app) report(err error, message string) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, renderSuccess("%s", message))
	return nil
}
