// Package store persists projects, system settings, and the filesystem
// task queue shared with the coding agents.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yusufkaraaslan/lazy-bird/internal/models"
)

// Sentinel errors mapped to HTTP statuses by the API layer.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrInvalid   = errors.New("invalid")
)

// configFile is the on-disk layout: the project list beside top-level
// system settings.
type configFile struct {
	Projects            []models.Project `yaml:"projects"`
	models.SystemConfig `yaml:",inline"`
}

// ConfigStore reads and writes the YAML config file. Every mutation
// rewrites the whole file atomically, so external edits between calls are
// picked up and never clobbered mid-write.
type ConfigStore struct {
	mu   sync.Mutex
	path string
}

// NewConfigStore wraps the config file at path. The file may not exist yet.
func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

// Path is the config file location.
func (s *ConfigStore) Path() string { return s.path }

func (s *ConfigStore) load() (*configFile, error) {
	cf := &configFile{SystemConfig: models.DefaultSystemConfig()}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cf, nil
}

func (s *ConfigStore) save(cf *configFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cf)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ListProjects returns all registered projects.
func (s *ConfigStore) ListProjects() ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return nil, err
	}
	return cf.Projects, nil
}

// GetProject looks a project up by id.
func (s *ConfigStore) GetProject(id string) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return models.Project{}, err
	}
	for _, p := range cf.Projects {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
}

// AddProject registers a new project after checking its required fields.
func (s *ConfigStore) AddProject(p models.Project) error {
	if err := validateProject(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range cf.Projects {
		if existing.ID == p.ID {
			return fmt.Errorf("project %s: %w", p.ID, ErrDuplicate)
		}
	}
	cf.Projects = append(cf.Projects, p)
	return s.save(cf)
}

// UpdateProject replaces the stored project with the same id.
func (s *ConfigStore) UpdateProject(p models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return err
	}
	for i := range cf.Projects {
		if cf.Projects[i].ID == p.ID {
			cf.Projects[i] = p
			return s.save(cf)
		}
	}
	return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
}

// DeleteProject removes a project by id.
func (s *ConfigStore) DeleteProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return err
	}
	for i, p := range cf.Projects {
		if p.ID == id {
			cf.Projects = append(cf.Projects[:i], cf.Projects[i+1:]...)
			return s.save(cf)
		}
	}
	return fmt.Errorf("project %s: %w", id, ErrNotFound)
}

// SetProjectEnabled flips the enabled flag and returns the updated project.
func (s *ConfigStore) SetProjectEnabled(id string, enabled bool) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return models.Project{}, err
	}
	for i := range cf.Projects {
		if cf.Projects[i].ID == id {
			cf.Projects[i].Enabled = enabled
			if err := s.save(cf); err != nil {
				return models.Project{}, err
			}
			return cf.Projects[i], nil
		}
	}
	return models.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
}

// System returns the global settings.
func (s *ConfigStore) System() (models.SystemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return models.SystemConfig{}, err
	}
	return cf.SystemConfig, nil
}

// UpdateSystem replaces the global settings.
func (s *ConfigStore) UpdateSystem(sc models.SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return err
	}
	cf.SystemConfig = sc
	return s.save(cf)
}

func validateProject(p models.Project) error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"id", p.ID},
		{"name", p.Name},
		{"type", p.Type},
		{"path", p.Path},
		{"repository", p.Repository},
		{"git_platform", p.GitPlatform},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}
