package provider

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/fsutil"
)

// File is the on-disk shape of the provider store: the selected provider
// key plus every known record.
type File struct {
	Current   string     `yaml:"current,omitempty"`
	Providers []Provider `yaml:"providers"`
}

// Store reads and writes provider records in a single YAML file.
//
// Records are persisted verbatim; env values are expanded (${VAR}) only
// on the read path, so secrets referenced from the environment are never
// baked back into the file by a write.
type Store struct {
	path string
}

// NewStore creates a store backed by the given YAML file. The file may
// not exist yet; it is created on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (*File, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("provider: read store: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("provider: parse store %s: %w", s.path, err)
	}
	for _, p := range f.Providers {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("provider: invalid record: %w", err)
		}
	}
	return &f, nil
}

func (s *Store) save(f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("provider: marshal store: %w", err)
	}
	if err := fsutil.WriteAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("provider: write store: %w", err)
	}
	return nil
}

// expanded returns a copy of p with env values passed through
// os.ExpandEnv, leaving the stored record untouched.
func expanded(p Provider) Provider {
	if len(p.Env) == 0 {
		return p
	}
	env := make(map[string]string, len(p.Env))
	for k, v := range p.Env {
		env[k] = os.ExpandEnv(v)
	}
	p.Env = env
	return p
}

// Get returns the named provider with env values expanded, or
// apperr.ErrNotFound.
func (s *Store) Get(name string) (Provider, error) {
	f, err := s.load()
	if err != nil {
		return Provider{}, err
	}
	for _, p := range f.Providers {
		if p.Name == name {
			return expanded(p), nil
		}
	}
	return Provider{}, fmt.Errorf("provider %q: %w", name, apperr.ErrNotFound)
}

// Current returns the currently selected provider, or apperr.ErrNotFound
// when no selection has been made.
func (s *Store) Current() (Provider, error) {
	f, err := s.load()
	if err != nil {
		return Provider{}, err
	}
	if f.Current == "" {
		return Provider{}, fmt.Errorf("provider: no current selection: %w", apperr.ErrNotFound)
	}
	return s.Get(f.Current)
}

// List returns every record (env unexpanded) and the current selection.
func (s *Store) List() ([]Provider, string, error) {
	f, err := s.load()
	if err != nil {
		return nil, "", err
	}
	return f.Providers, f.Current, nil
}

// SetCurrent persists name as the selected provider key.
func (s *Store) SetCurrent(name string) error {
	f, err := s.load()
	if err != nil {
		return err
	}
	found := false
	for _, p := range f.Providers {
		if p.Name == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("provider %q: %w", name, apperr.ErrNotFound)
	}
	f.Current = name
	return s.save(f)
}

// Add validates and appends a new record.
func (s *Store) Add(p Provider) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range f.Providers {
		if existing.Name == p.Name {
			return fmt.Errorf("provider %q: %w", p.Name, apperr.ErrAlreadyExists)
		}
	}
	f.Providers = append(f.Providers, p)
	return s.save(f)
}

// Remove deletes the named record, clearing the selection if it pointed
// at the removed provider.
func (s *Store) Remove(name string) error {
	f, err := s.load()
	if err != nil {
		return err
	}
	kept := f.Providers[:0]
	found := false
	for _, p := range f.Providers {
		if p.Name == name {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("provider %q: %w", name, apperr.ErrNotFound)
	}
	f.Providers = kept
	if f.Current == name {
		f.Current = ""
	}
	return s.save(f)
}
