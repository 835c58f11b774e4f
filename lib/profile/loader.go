package profile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/profile-v1.json
var profileSchemaJSON string

// Validator checks profile documents against the embedded JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("profile-v1.json", strings.NewReader(profileSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("profile-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks a YAML document against the profile schema. The document
// is round-tripped through JSON so the validator sees JSON types.
func (v *Validator) Validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("profile is not representable as JSON: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	if err := v.schema.Validate(generic); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// Parse validates and decodes one profile.
func (v *Validator) Parse(data []byte) (*Profile, error) {
	if err := v.Validate(data); err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

// Loader finds profiles by name in a list of directories and caches them.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

// NewLoader returns a Loader searching searchPaths in order.
func NewLoader(searchPaths ...string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}
	return &Loader{validator: validator, searchPaths: searchPaths}, nil
}

// Load returns the profile called name, read from name.yaml or name.yml in
// the first search path holding one. A name that is itself a readable file
// path is loaded directly.
func (l *Loader) Load(name string) (*Profile, error) {
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Profile), nil
	}

	data, found, err := l.read(name)
	if err != nil {
		return nil, err
	}
	p, err := l.validator.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", found, err)
	}
	// Compile once here so a bad template or map is reported at load.
	if _, err := p.PropertySet(); err != nil {
		return nil, fmt.Errorf("%s: %w", found, err)
	}
	if _, err := p.ChannelSet(); err != nil {
		return nil, fmt.Errorf("%s: %w", found, err)
	}

	l.cache.Store(name, p)
	return p, nil
}

func (l *Loader) read(name string) ([]byte, string, error) {
	if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
		data, err := os.ReadFile(name)
		return data, name, err
	}
	for _, dir := range l.searchPaths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			data, err := os.ReadFile(path)
			if err == nil {
				return data, path, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return nil, path, err
			}
		}
	}
	return nil, "", fmt.Errorf("profile not found: %s (searched in: %v)", name, l.searchPaths)
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value any) bool {
		l.cache.Delete(key)
		return true
	})
}
