package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"cutty/internal/filesystem"
	"cutty/internal/template"
	"cutty/pkg/fileops"
)

const (
	// ConfigFile records how a project was generated.
	ConfigFile = "cutty.json"

	// LegacyConfigFile is the flat record written by older tools. It is read
	// when ConfigFile is absent.
	LegacyConfigFile = ".cookiecutter.json"
)

// ErrNoConfig is returned when a project has no bookkeeping file.
var ErrNoConfig = errors.New("project has no " + ConfigFile)

// Template identifies the template a project is generated from.
type Template struct {
	Location  string
	Revision  *string
	Directory *string
}

// Config is the bookkeeping record of a generated project.
type Config struct {
	Template Template
	Bindings []template.Binding
}

// RevisionOrDefault returns the pinned revision, or "" for the default.
func (t Template) RevisionOrDefault() string {
	if t.Revision == nil {
		return ""
	}
	return *t.Revision
}

// DirectoryOrDefault returns the template subdirectory, or "" for the root.
func (t Template) DirectoryOrDefault() string {
	if t.Directory == nil {
		return ""
	}
	return *t.Directory
}

// Marshal encodes the config as indented JSON with bindings in order.
func (c *Config) Marshal() ([]byte, error) {
	tpl := orderedmap.New[string, any]()
	tpl.Set("location", c.Template.Location)
	tpl.Set("revision", c.Template.Revision)
	tpl.Set("directory", c.Template.Directory)

	bindings := orderedmap.New[string, any]()
	for _, b := range c.Bindings {
		bindings.Set(b.Name, template.JSON(b.Value))
	}

	doc := orderedmap.New[string, any]()
	doc.Set("template", tpl)
	doc.Set("bindings", bindings)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ConfigFile, err)
	}
	return append(data, '\n'), nil
}

// ParseConfig decodes a ConfigFile.
func ParseConfig(data []byte) (*Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s is not valid JSON", ConfigFile)
	}
	doc := gjson.ParseBytes(data)

	location := doc.Get("template.location")
	if location.Type != gjson.String || location.String() == "" {
		return nil, fmt.Errorf("%s: template.location must be a non-empty string", ConfigFile)
	}

	c := &Config{Template: Template{
		Location:  location.String(),
		Revision:  optionalString(doc.Get("template.revision")),
		Directory: optionalString(doc.Get("template.directory")),
	}}

	bindings := doc.Get("bindings")
	if bindings.Exists() && !bindings.IsObject() {
		return nil, fmt.Errorf("%s: bindings must be an object", ConfigFile)
	}
	bindings.ForEach(func(key, value gjson.Result) bool {
		c.Bindings = append(c.Bindings, template.Binding{Name: key.String(), Value: template.FromJSON(value)})
		return true
	})
	return c, nil
}

// ParseLegacyConfig decodes a LegacyConfigFile: a flat object whose
// "_template" key names the template and whose other keys are bindings.
// "_checkout" and "_directory" carry the revision and subdirectory; other
// underscore keys are private to the template and skipped.
func ParseLegacyConfig(data []byte) (*Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s is not valid JSON", LegacyConfigFile)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%s must contain a JSON object", LegacyConfigFile)
	}

	location := doc.Get("_template")
	if location.Type != gjson.String || location.String() == "" {
		return nil, fmt.Errorf("%s: _template must be a non-empty string", LegacyConfigFile)
	}

	c := &Config{Template: Template{
		Location:  location.String(),
		Revision:  optionalString(doc.Get("_checkout")),
		Directory: optionalString(doc.Get("_directory")),
	}}

	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if strings.HasPrefix(name, "_") {
			return true
		}
		c.Bindings = append(c.Bindings, template.Binding{Name: name, Value: template.FromJSON(value)})
		return true
	})
	return c, nil
}

func optionalString(r gjson.Result) *string {
	if r.Type != gjson.String {
		return nil
	}
	s := r.String()
	return &s
}

// ReadConfig reads the bookkeeping file of the project at root, falling back
// to the legacy format.
func ReadConfig(root filesystem.Path) (*Config, error) {
	if file := root.Join(ConfigFile); file.IsFile() {
		data, err := file.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigFile, err)
		}
		return ParseConfig(data)
	}

	if file := root.Join(LegacyConfigFile); file.IsFile() {
		data, err := file.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", LegacyConfigFile, err)
		}
		return ParseLegacyConfig(data)
	}

	return nil, ErrNoConfig
}

// WriteConfig writes c as ConfigFile into dir.
func WriteConfig(dir string, c *Config) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return fileops.AtomicWriteFile(filepath.Join(dir, ConfigFile), data, 0644)
}

// isBookkeeping reports whether path is one of the bookkeeping files.
func isBookkeeping(path string) bool {
	return path == ConfigFile || path == LegacyConfigFile
}
