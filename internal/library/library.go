// internal/library/library.go
// The library is the on-disk workflow store. Each workflow lives in its own
// JSON or YAML file under the library directory, and metadata.json indexes
// them so listing never has to parse every workflow file.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when no stored workflow matches an id or name.
var ErrNotFound = errors.New("library: workflow not found")

const indexFile = "metadata.json"

// Entry is one workflow's index record.
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	SavedAt     time.Time `json:"saved_at"`
	Steps       int       `json:"steps"`
	Variables   []string  `json:"variables,omitempty"`
	File        string    `json:"file"`
	Format      string    `json:"format"`
}

type index struct {
	Workflows []Entry `json:"workflows"`
}

// Library stores workflows under a single directory.
type Library struct {
	mu     sync.Mutex
	dir    string
	format string
	logger *zap.Logger
}

// Open prepares the library directory. An empty configured dir falls back to
// ~/.naytrik/workflows.
func Open(cfg config.LibraryConfig, logger *zap.Logger) (*Library, error) {
	dir := cfg.Dir
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		dir = filepath.Join(home, ".naytrik", "workflows")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create library dir %s: %w", dir, err)
	}

	format := cfg.Format
	if format == "" {
		format = "json"
	}

	return &Library{
		dir:    dir,
		format: format,
		logger: logger.Named("library").With(zap.String("dir", dir)),
	}, nil
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "workflow"
	}
	return s
}

// Save validates and persists a workflow. Saving a name that already exists
// replaces the previous version. The new index entry is returned.
func (l *Library) Save(wf *schemas.Workflow) (*Entry, error) {
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to save invalid workflow: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx, err := l.readIndex()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	filename := fmt.Sprintf("%s-%s.%s", slugify(wf.Name), id[:8], l.format)

	var data []byte
	switch l.format {
	case "yaml":
		data, err = yaml.Marshal(wf)
	default:
		data, err = json.MarshalIndent(wf, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow %q: %w", wf.Name, err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, filename), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write workflow file: %w", err)
	}

	entry := Entry{
		ID:          id,
		Name:        wf.Name,
		Description: wf.Description,
		CreatedAt:   wf.CreatedAt,
		SavedAt:     time.Now().UTC(),
		Steps:       len(wf.Steps),
		Variables:   append([]string(nil), wf.Variables...),
		File:        filename,
		Format:      l.format,
	}

	// Same name replaces: drop the old entry and its file.
	kept := idx.Workflows[:0]
	for _, e := range idx.Workflows {
		if e.Name == wf.Name {
			if err := os.Remove(filepath.Join(l.dir, e.File)); err != nil && !os.IsNotExist(err) {
				l.logger.Warn("Failed to remove replaced workflow file.", zap.String("file", e.File), zap.Error(err))
			}
			continue
		}
		kept = append(kept, e)
	}
	idx.Workflows = append(kept, entry)

	if err := l.writeIndex(idx); err != nil {
		return nil, err
	}
	l.logger.Info("Workflow saved.",
		zap.String("name", wf.Name), zap.String("id", id), zap.Int("steps", entry.Steps))
	return &entry, nil
}

// List returns every stored workflow's index entry, sorted by name.
func (l *Library) List() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, err := l.readIndex()
	if err != nil {
		return nil, err
	}
	entries := append([]Entry(nil), idx.Workflows...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Load fetches a workflow by id or, failing that, by exact name.
func (l *Library) Load(idOrName string) (*schemas.Workflow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.find(idOrName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(l.dir, entry.File))
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", entry.File, err)
	}

	var wf schemas.Workflow
	switch entry.Format {
	case "yaml":
		err = yaml.Unmarshal(data, &wf)
	default:
		err = json.Unmarshal(data, &wf)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow %q: %w", entry.Name, err)
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("stored workflow %q is invalid: %w", entry.Name, err)
	}
	return &wf, nil
}

// Delete removes a workflow and its index entry by id or name.
func (l *Library) Delete(idOrName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, err := l.readIndex()
	if err != nil {
		return err
	}

	kept := idx.Workflows[:0]
	var removed *Entry
	for _, e := range idx.Workflows {
		if e.ID == idOrName || e.Name == idOrName {
			removed = &e
			continue
		}
		kept = append(kept, e)
	}
	if removed == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, idOrName)
	}
	idx.Workflows = kept

	if err := os.Remove(filepath.Join(l.dir, removed.File)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove workflow file: %w", err)
	}
	if err := l.writeIndex(idx); err != nil {
		return err
	}
	l.logger.Info("Workflow deleted.", zap.String("name", removed.Name), zap.String("id", removed.ID))
	return nil
}

func (l *Library) find(idOrName string) (*Entry, error) {
	idx, err := l.readIndex()
	if err != nil {
		return nil, err
	}
	for i := range idx.Workflows {
		if idx.Workflows[i].ID == idOrName {
			return &idx.Workflows[i], nil
		}
	}
	for i := range idx.Workflows {
		if idx.Workflows[i].Name == idOrName {
			return &idx.Workflows[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, idOrName)
}

func (l *Library) readIndex() (*index, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, indexFile))
	if os.IsNotExist(err) {
		return &index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read library index: %w", err)
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("library index is corrupt: %w", err)
	}
	return &idx, nil
}

// writeIndex replaces the index atomically via a temp file rename.
func (l *Library) writeIndex(idx *index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode library index: %w", err)
	}
	tmp := filepath.Join(l.dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write library index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(l.dir, indexFile)); err != nil {
		return fmt.Errorf("failed to replace library index: %w", err)
	}
	return nil
}
