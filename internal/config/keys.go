package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	// kPath is a string with a leading ~ expanded to the home directory.
	// The rest of the value, including any trailing slash, is kept as is.
	kPath
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "repo.root", typ: kPath, env: "HACKERRANK_REPO",
		apply:   func(cfg *Config, v any) { cfg.Repo.Root = v.(string) },
		extract: func(cfg Config) any { return cfg.Repo.Root },
	},
	{
		key: "repo.remote", typ: kString, env: "HRCODE_REPO_REMOTE",
		apply:   func(cfg *Config, v any) { cfg.Repo.Remote = v.(string) },
		extract: func(cfg Config) any { return cfg.Repo.Remote },
	},
	{
		key: "repo.branch", typ: kString, env: "HRCODE_REPO_BRANCH",
		apply:   func(cfg *Config, v any) { cfg.Repo.Branch = v.(string) },
		extract: func(cfg Config) any { return cfg.Repo.Branch },
	},
	{
		key: "repo.push", typ: kBool, env: "HRCODE_REPO_PUSH",
		apply:   func(cfg *Config, v any) { cfg.Repo.Push = v.(bool) },
		extract: func(cfg Config) any { return cfg.Repo.Push },
	},
	{
		key: "downloads.dir", typ: kPath, env: "HRCODE_DOWNLOADS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Downloads.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Downloads.Dir },
	},
	{
		key: "storage.data_dir", typ: kPath, env: "HRCODE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "server.port", typ: kInt, env: "HRCODE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "HRCODE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "log.level", typ: kString, env: "HRCODE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "archive.workers", typ: kInt, env: "HRCODE_ARCHIVE_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Archive.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Archive.Workers },
	},
	{
		key: "archive.strict", typ: kBool, env: "HRCODE_ARCHIVE_STRICT",
		apply:   func(cfg *Config, v any) { cfg.Archive.Strict = v.(bool) },
		extract: func(cfg Config) any { return cfg.Archive.Strict },
	},
	{
		key: "archive.auto_attempt", typ: kBool, env: "HRCODE_ARCHIVE_AUTO_ATTEMPT",
		apply:   func(cfg *Config, v any) { cfg.Archive.AutoAttempt = v.(bool) },
		extract: func(cfg Config) any { return cfg.Archive.AutoAttempt },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString, kPath:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, s.normalize(v))
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString, kPath:
			s.apply(cfg, s.normalize(raw))
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// normalize expands ~ for path keys and returns other values unchanged.
func (s keySpec) normalize(v string) string {
	if s.typ != kPath {
		return v
	}
	return expandHome(v)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return home + p[1:]
}
