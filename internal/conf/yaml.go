// yaml.go: YAML rendering and atomic config writes
package conf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DumpYAML renders settings as YAML. Durations are written in their string form
// so the output can be loaded back as a config file.
func DumpYAML(settings *Settings) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return nil, fmt.Errorf("error encoding settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("error finishing settings encoding: %w", err)
	}

	return buf.Bytes(), nil
}

// SaveYAMLConfig writes settings to configPath, replacing the file atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := DumpYAML(settings)
	if err != nil {
		return err
	}
	return writeFileAtomic(configPath, data)
}

// writeFileAtomic writes data to a temporary file next to path and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempName)
		return fmt.Errorf("error writing temporary file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Chmod(tempName, 0o644); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error setting file permissions: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
