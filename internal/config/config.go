package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Repo      RepoConfig
	Downloads DownloadsConfig
	Storage   StorageConfig
	Server    ServerConfig
	Log       LogConfig
	Archive   ArchiveConfig
}

// RepoConfig describes the git repository solutions are archived into.
type RepoConfig struct {
	Root   string
	Remote string
	Branch string
	Push   bool
}

type DownloadsConfig struct {
	Dir string
}

type StorageConfig struct {
	DataDir string
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type LogConfig struct {
	Level string
}

type ArchiveConfig struct {
	Workers     int
	Strict      bool
	AutoAttempt bool
}

func defaults() Config {
	return Config{
		Repo: RepoConfig{
			Root:   defaultRepoRoot(),
			Remote: "origin",
		},
		Downloads: DownloadsConfig{
			Dir: defaultDownloadsDir(),
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Port: 4300,
		},
		Log: LogConfig{
			Level: "info",
		},
		Archive: ArchiveConfig{
			Workers:     4,
			AutoAttempt: true,
		},
	}
}

// defaultRepoRoot keeps the trailing slash: derived paths are built by
// appending category segments to it.
func defaultRepoRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "hackerrank-code/"
	}
	return filepath.Join(home, "hackerrank-code") + "/"
}

func defaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// Load reads configuration from the platform-native backend, then applies
// environment variable overrides.
//
// On macOS the backend is UserDefaults (domain: com.hrcode.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/hrcode/config.json.
//
// HACKERRANK_REPO overrides the repository root; every other key has an
// HRCODE_* variable. Secrets are read from the environment only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
