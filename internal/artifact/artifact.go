// Package artifact persists the outputs of an analysis run: the accepted
// query, the chart document, its rendering, and the result data. Files are
// named by invocation so one analysis leaves one coherent set on disk.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	logx "github.com/crmlens/engine/pkg/logger"
)

// Config locates the artifact directory.
type Config struct {
	Dir string `envconfig:"ARTIFACT_DIR" default:"artifacts"`
}

// Store writes artifacts under a single directory. Safe for concurrent use;
// names are uuid-based so writers never collide.
type Store struct {
	dir string
}

func NewStore(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: cfg.Dir}, nil
}

// SaveQuery stores the accepted query markdown and returns its file name.
func (s *Store) SaveQuery(markdown string) (string, error) {
	name := "query_" + uuid.NewString() + ".md"
	if err := s.write(name, []byte(markdown)); err != nil {
		return "", err
	}
	return name, nil
}

// SaveChart stores the chart document as <invocation>.vg and returns the
// file name.
func (s *Store) SaveChart(invocationID, chartJSON string) (string, error) {
	name := invocationID + ".vg"
	if err := s.write(name, []byte(chartJSON)); err != nil {
		return "", err
	}
	return name, nil
}

// SaveImage stores the rendered chart as <invocation>.png and returns the
// file name.
func (s *Store) SaveImage(invocationID string, png []byte) (string, error) {
	name := invocationID + ".png"
	if err := s.write(name, png); err != nil {
		return "", err
	}
	return name, nil
}

// SaveData stores the full result set as <invocation>.csv and returns the
// file name.
func (s *Store) SaveData(invocationID, csv string) (string, error) {
	name := invocationID + ".csv"
	if err := s.write(name, []byte(csv)); err != nil {
		return "", err
	}
	return name, nil
}

// Read loads a stored artifact by file name.
func (s *Store) Read(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
}

// Path returns the on-disk location of a stored artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

func (s *Store) write(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	logx.Debug().Str("artifact", name).Int("bytes", len(data)).Msg("artifact stored")
	return nil
}
