package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

// ErrUserInitiatedExit is returned when the user asked to leave. Callers
// should exit with status code 0.
var ErrUserInitiatedExit = errors.New("user exit")

// ConfigDir returns <UserConfigDir>/.cloudcost, unless overridden by
// CLOUDCOST_CONFIG_HOME.
func ConfigDir() (string, error) {
	if home := os.Getenv("CLOUDCOST_CONFIG_HOME"); home != "" {
		return home, nil
	}
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(cfg, ".cloudcost"), nil
}

// LoadConfigFromFile reads configFileName from configDir, creating the
// directory and a file holding dflt if they're missing. Zero valued fields are
// filled in from dflt and written back, so new config fields show up in old
// files.
func LoadConfigFromFile[T any](configDir, configFileName string, dflt *T) (T, error) {
	var conf T
	configPath := filepath.Join(configDir, configFileName)
	if misc.Truthy(os.Getenv("DEBUG")) {
		ancli.PrintOK(fmt.Sprintf("attempting to load file: %v\n", configPath))
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return conf, fmt.Errorf("failed to create config dir: %w", err)
	}
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		if err := WriteFile(configPath, dflt); err != nil {
			return conf, fmt.Errorf("failed to write default config '%v': %w", configFileName, err)
		}
		ancli.PrintOK(fmt.Sprintf("created default config at: '%v'\n", configPath))
	}

	if err := ReadAndUnmarshal(configPath, &conf); err != nil {
		return conf, fmt.Errorf("failed to load config '%v': %w", configFileName, err)
	}

	if setNonZeroValueFields(&conf, dflt) {
		if err := WriteFile(configPath, &conf); err != nil {
			return conf, fmt.Errorf("failed to write config '%v' post zero-field appendage: %w", configFileName, err)
		}
		ancli.PrintOK(fmt.Sprintf("appended new fields to config file: %v\n", configPath))
	}
	return conf, nil
}

// setNonZeroValueFields on a using b as template
func setNonZeroValueFields[T any](a, b *T) bool {
	hasChanged := false
	t := reflect.TypeOf(*a)
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		aVal := reflect.ValueOf(a).Elem().Field(i)
		bVal := reflect.ValueOf(b).Elem().Field(i)
		if aVal.IsZero() && !bVal.IsZero() {
			hasChanged = true
			aVal.Set(bVal)
		}
	}
	return hasChanged
}

func WriteFile[T any](path string, toWrite *T) error {
	b, err := json.MarshalIndent(toWrite, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func ReadAndUnmarshal[T any](filePath string, into *T) error {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return fmt.Errorf("failed to unmarshal file: %w", err)
	}
	return nil
}
