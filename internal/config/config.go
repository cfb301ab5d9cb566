package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config regroupe la configuration d'infrastructure (process-level).
// La configuration applicative vit dans config.json, rechargeable à chaud.
type Config struct {
	Addr         string
	SettingsPath string
	StateDir     string
	FFprobeBin   string
}

// LoadDotenv charge un éventuel fichier .env dans l'environnement.
// L'absence du fichier n'est pas une erreur pour l'appelant.
func LoadDotenv(paths ...string) error {
	return godotenv.Load(paths...)
}

func Default() Config {
	return Config{
		Addr:         envOr("ARCHIVER_ADDR", "127.0.0.1:8080"),
		SettingsPath: envOr("ARCHIVER_SETTINGS_PATH", "config.json"),
		StateDir:     envOr("ARCHIVER_STATE_DIR", "."),
		FFprobeBin:   envOr("ARCHIVER_FFPROBE_BIN", "ffprobe"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
