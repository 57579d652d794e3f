package project

import (
	"context"
	"fmt"

	"cutty/internal/repository"
	"cutty/internal/template"
)

// Rendered is a rendered project held in memory.
type Rendered struct {
	// Name is the project directory name chosen by the template, if any.
	Name  string
	Files []template.File
	// Revision is the template revision that was rendered, when the
	// provider can name one (a tag or short commit hash).
	Revision string
	Config   Config
}

// Render resolves the template named by cfg, binds its variables with the
// bindings in cfg as overrides, and renders it. The returned config carries
// the resolved bindings.
func Render(ctx context.Context, registry *repository.Registry, cfg Config) (*Rendered, error) {
	repo, err := registry.Resolve(ctx, cfg.Template.Location, cfg.Template.RevisionOrDefault())
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	tpl, err := template.Load(repo.Path, cfg.Template.DirectoryOrDefault())
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", cfg.Template.Location, err)
	}

	bindings, err := tpl.Bind(cfg.Bindings)
	if err != nil {
		return nil, err
	}

	project, err := tpl.Render(bindings)
	if err != nil {
		return nil, err
	}

	resolved := cfg
	resolved.Bindings = bindings
	return &Rendered{Name: project.Name, Files: project.Files, Revision: repo.Revision, Config: resolved}, nil
}

// Write writes the project files and the bookkeeping file into dir.
func (r *Rendered) Write(dir string) error {
	if err := template.WriteFiles(dir, r.Files); err != nil {
		return err
	}
	return WriteConfig(dir, &r.Config)
}

// Generator returns a Generate that renders cfg afresh on every call.
func Generator(registry *repository.Registry, cfg Config) Generate {
	return func(ctx context.Context, dir string) error {
		rendered, err := Render(ctx, registry, cfg)
		if err != nil {
			return err
		}
		return rendered.Write(dir)
	}
}

// Static returns a Generate that writes an already rendered project.
func (r *Rendered) Static() Generate {
	return func(_ context.Context, dir string) error {
		return r.Write(dir)
	}
}
