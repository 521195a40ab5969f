package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvToken    = "KINOBOT_TOKEN"
	EnvDSN      = "KINOBOT_DSN"
	EnvOpsToken = "KINOBOT_OPS_TOKEN"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Existing variables win; missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// applyEnv fills secrets that are commonly kept out of the config file.
func applyEnv(cfg *Config) {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		cfg.Telegram.Token = strings.TrimSpace(os.Getenv(EnvToken))
	}
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		cfg.Storage.DSN = strings.TrimSpace(os.Getenv(EnvDSN))
	}
	if strings.TrimSpace(cfg.Ops.Token) == "" {
		cfg.Ops.Token = strings.TrimSpace(os.Getenv(EnvOpsToken))
	}
}
