package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvNewEraConfig = "NEWERA_CONFIG"
	EnvNewEraHome   = "NEWERA_HOME"
)

type RuntimePaths struct {
	HomeDir    string
	ConfigPath string
}

func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvNewEraConfig))); configPath != "" {
		return RuntimePaths{HomeDir: filepath.Dir(configPath), ConfigPath: configPath}
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvNewEraHome)))
	if homeDir == "" {
		homeDir = defaultNewEraHome()
	}
	return RuntimePaths{HomeDir: homeDir, ConfigPath: filepath.Join(homeDir, "config.json")}
}

func defaultNewEraHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".newera"
	}
	return filepath.Join(home, ".newera")
}
