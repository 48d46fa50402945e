// Package configloader loads YAML configuration overrides for the AI stack.
package configloader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader reads YAML files relative to a base directory, falling back to the
// executable's directory for installed builds.
type Loader struct {
	baseDir string
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// Load reads a YAML file and unmarshals it into target.
func (l *Loader) Load(subPath string, target any) error {
	data, err := l.readFileWithFallback(subPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", subPath, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal YAML %s: %w", subPath, err)
	}
	return nil
}

func (l *Loader) readFileWithFallback(path string) ([]byte, error) {
	absPath := filepath.Join(l.baseDir, path)
	data, err := os.ReadFile(absPath)
	if err == nil {
		return data, nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(filepath.Dir(execPath), l.baseDir, path))
}
