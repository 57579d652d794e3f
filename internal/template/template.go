// Package template renders project templates from a mounted repository.
//
// A template is a directory holding an optional cookiecutter.json with the
// variable defaults, and the project files. When the directory contains a
// single subdirectory whose name is itself a template expression, that
// subdirectory is the project and its rendered name is the project name.
// File names and contents use Jinja syntax; variables are available both at
// the top level and below "cookiecutter".
package template

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/nikolalohinski/gonja"
	"github.com/tidwall/gjson"

	"cutty/internal/filesystem"
)

const (
	// VariablesFile holds the variable defaults of a template.
	VariablesFile = "cookiecutter.json"

	copyWithoutRenderKey = "_copy_without_render"
	contextName          = "cookiecutter"
)

// skipped entries are never part of a generated project.
var skipped = map[string]bool{
	VariablesFile: true,
	"hooks":       true,
	".git":        true,
	".hg":         true,
}

// Template is a loaded template directory.
type Template struct {
	root              filesystem.Path
	variables         []Binding
	copyWithoutRender []string
}

// Project is the output of rendering a template.
type Project struct {
	// Name is the rendered name of the project directory, or empty when the
	// template has no project directory.
	Name  string
	Files []File
}

// Load reads the template below root, optionally in the subdirectory
// directory.
func Load(root filesystem.Path, directory string) (*Template, error) {
	if directory != "" {
		root = root.JoinPath(filesystem.ParsePurePath(directory))
	}
	if !root.IsDir() {
		return nil, fmt.Errorf("template directory %s: %w", root, filesystem.ErrNotDirectory)
	}

	t := &Template{root: root}

	file := root.Join(VariablesFile)
	if !file.Exists() {
		return t, nil
	}

	text, err := file.ReadText()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", VariablesFile, err)
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%s is not valid JSON", VariablesFile)
	}
	doc := gjson.Parse(text)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%s must contain a JSON object", VariablesFile)
	}

	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == copyWithoutRenderKey {
			value.ForEach(func(_, pattern gjson.Result) bool {
				t.copyWithoutRender = append(t.copyWithoutRender, pattern.String())
				return true
			})
		}
		t.variables = append(t.variables, Binding{Name: name, Value: FromJSON(value)})
		return true
	})
	return t, nil
}

// Variables returns the declared variables with their raw defaults.
func (t *Template) Variables() []Binding {
	return t.variables
}

// Bind resolves the template variables. An override replaces the default of
// the variable with the same name; other defaults are rendered against the
// variables bound before them, and a sequence default selects its first
// element. Overrides for undeclared variables are appended in order.
func (t *Template) Bind(overrides []Binding) ([]Binding, error) {
	given := make(map[string]Value, len(overrides))
	for _, o := range overrides {
		given[o.Name] = o.Value
	}

	bindings := make([]Binding, 0, len(t.variables)+len(overrides))
	declared := make(map[string]bool, len(t.variables))
	for _, v := range t.variables {
		declared[v.Name] = true

		if value, ok := given[v.Name]; ok {
			bindings = append(bindings, Binding{Name: v.Name, Value: coerce(value, v.Value)})
			continue
		}

		if strings.HasPrefix(v.Name, "_") {
			bindings = append(bindings, v)
			continue
		}

		value, err := renderDefault(v.Value, bindings)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		bindings = append(bindings, Binding{Name: v.Name, Value: value})
	}

	for _, o := range overrides {
		if !declared[o.Name] {
			declared[o.Name] = true
			bindings = append(bindings, o)
		}
	}
	return bindings, nil
}

func renderDefault(v Value, bindings []Binding) (Value, error) {
	switch v := v.(type) {
	case String:
		s, err := renderString(string(v), bindings)
		return String(s), err
	case Sequence:
		if len(v) == 0 {
			return String(""), nil
		}
		return renderDefault(v[0], bindings)
	case *Mapping:
		out := NewMapping()
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			rendered, err := renderDefault(item, bindings)
			if err != nil {
				return nil, err
			}
			out.Set(key, rendered)
		}
		return out, nil
	default:
		return v, nil
	}
}

// Render produces the project files for bindings.
func (t *Template) Render(bindings []Binding) (*Project, error) {
	project := &Project{}
	base := t.root

	entries, err := t.projectEntries(base)
	if err != nil {
		return nil, err
	}
	if len(entries) == 1 && entries[0].IsDir() && !entries[0].IsSymlink() && strings.Contains(entries[0].Name(), "{{") {
		name, err := renderString(entries[0].Name(), bindings)
		if err != nil {
			return nil, fmt.Errorf("failed to render project name: %w", err)
		}
		project.Name = name
		base = entries[0]
	}

	r := renderer{template: t, base: base, bindings: bindings}
	if err := r.walk(base, filesystem.PurePath{}, &project.Files); err != nil {
		return nil, err
	}
	return project, nil
}

func (t *Template) projectEntries(dir filesystem.Path) ([]filesystem.Path, error) {
	entries, err := dir.Iterdir()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	kept := entries[:0]
	for _, entry := range entries {
		if dir.Equal(t.root) && skipped[entry.Name()] {
			continue
		}
		kept = append(kept, entry)
	}
	return kept, nil
}

type renderer struct {
	template *Template
	base     filesystem.Path
	bindings []Binding
}

func (r *renderer) walk(dir filesystem.Path, rendered filesystem.PurePath, files *[]File) error {
	entries, err := r.template.projectEntries(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name, err := renderString(entry.Name(), r.bindings)
		if err != nil {
			return fmt.Errorf("failed to render name of %s: %w", entry, err)
		}
		segment := filesystem.ParsePurePath(name)
		if segment.IsRoot() {
			continue
		}
		target := rendered.JoinPath(segment)

		switch {
		case entry.IsSymlink():
			file, err := r.symlink(entry, target)
			if err != nil {
				return err
			}
			*files = append(*files, file)
		case entry.IsDir():
			if err := r.walk(entry, target, files); err != nil {
				return err
			}
		default:
			file, err := r.file(entry, target)
			if err != nil {
				return err
			}
			*files = append(*files, file)
		}
	}
	return nil
}

func (r *renderer) file(entry filesystem.Path, target filesystem.PurePath) (File, error) {
	data, err := entry.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", entry, err)
	}

	if !isBinary(data) && !r.copyOnly(entry) {
		text, err := renderString(string(data), r.bindings)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", entry, err)
		}
		data = []byte(text)
	}

	if entry.Access(filesystem.AccessExecute) {
		return Executable{Path: target, Data: data}, nil
	}
	return RegularFile{Path: target, Data: data}, nil
}

func (r *renderer) symlink(entry filesystem.Path, target filesystem.PurePath) (File, error) {
	dest, err := entry.Readlink()
	if err != nil {
		return nil, fmt.Errorf("failed to read link %s: %w", entry, err)
	}
	relative, err := dest.RelativeTo(r.base)
	if err != nil {
		return nil, fmt.Errorf("symlink %s points outside the template", entry)
	}
	normalized, ok := normalize(relative)
	if !ok {
		return nil, fmt.Errorf("symlink %s points outside the template", entry)
	}
	return Symlink{Path: target, Target: normalized}, nil
}

// copyOnly reports whether entry matches a copy-without-render pattern.
func (r *renderer) copyOnly(entry filesystem.Path) bool {
	if len(r.template.copyWithoutRender) == 0 {
		return false
	}
	relative, err := entry.RelativeTo(r.base)
	if err != nil {
		return false
	}
	name := relative.String()
	for _, pattern := range r.template.copyWithoutRender {
		rendered, err := renderString(pattern, r.bindings)
		if err != nil {
			rendered = pattern
		}
		if ok, _ := path.Match(rendered, name); ok {
			return true
		}
		for _, parent := range relative.Parents() {
			if parent.IsRoot() {
				continue
			}
			if ok, _ := path.Match(rendered, parent.String()); ok {
				return true
			}
		}
	}
	return false
}

func isBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0 || !utf8.Valid(data)
}

// renderString renders a Jinja template string. A trailing newline in the
// source is kept.
func renderString(source string, bindings []Binding) (string, error) {
	if !strings.Contains(source, "{{") && !strings.Contains(source, "{%") && !strings.Contains(source, "{#") {
		return source, nil
	}

	tpl, err := gonja.FromString(source)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}
	out, err := tpl.Execute(renderContext(bindings))
	if err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}
	if strings.HasSuffix(source, "\n") && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, nil
}

func renderContext(bindings []Binding) gonja.Context {
	vars := make(map[string]any, len(bindings))
	for _, b := range bindings {
		vars[b.Name] = contextValue(b.Value)
	}
	ctx := gonja.Context{}
	for name, value := range vars {
		ctx[name] = value
	}
	ctx[contextName] = vars
	return ctx
}
