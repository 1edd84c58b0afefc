package mcp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ServerConfig describes how to launch a stdio tool server.
type ServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	EnvFile string            `json:"envfile,omitempty"`
	Dir     string            `json:"dir,omitempty"`
}

func (c ServerConfig) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	return filepath.Base(c.Command)
}

// environ returns the parent environment, then the envfile, then Env. Later
// entries win.
func (c ServerConfig) environ() ([]string, error) {
	env := os.Environ()
	fromFile, err := loadEnvFile(c.EnvFile)
	if err != nil {
		return nil, err
	}
	for k, v := range fromFile {
		env = append(env, k+"="+v)
	}
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	return env, nil
}

func loadEnvFile(envFile string) (map[string]string, error) {
	envFile = strings.TrimSpace(envFile)
	if envFile == "" {
		return nil, nil
	}
	resolved, err := expandUserPath(envFile)
	if err != nil {
		return nil, err
	}
	env, err := godotenv.Read(resolved)
	if err != nil {
		return nil, fmt.Errorf("read envfile %q: %w", resolved, err)
	}
	return env, nil
}

func expandUserPath(p string) (string, error) {
	if p == "" || p[0] != '~' {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	if p == "~" {
		return home, nil
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:]), nil
	}
	// Don't attempt to expand ~user paths.
	return p, nil
}
