// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/biosync/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the configuration search paths for the current OS.
// If a config.yaml exists in one of them, only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case osWindows:
		configPaths = []string{
			filepath.Join(homeDir, "AppData", "Roaming", "biosync"),
			".",
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "biosync"),
			"/etc/biosync",
			".",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// FindConfigFile returns the path of the first existing config.yaml.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Component("configuration").
		Category(errors.CategoryNotFound).
		Context("operation", "find-config-file").
		Build()
}
