package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "telegram-cin-bot"
	EnvFileName = "config.env"
)

const (
	ExtractorRemote = "remote"
	ExtractorGemini = "gemini"
)

// Config is the bot's runtime configuration, read from the environment.
type Config struct {
	BotToken  string
	TokenKey  string
	AdminID   int64
	UploadURL string
	AuthURL   string
	DBPath    string
	AdminAddr string

	PreviewWidth  float64
	PreviewHeight float64

	Extractor    string
	GeminiAPIKey string

	// Retention is how long extraction history is kept. Zero disables pruning.
	Retention time.Duration
}

var requiredVars = []string{"BOT_TOKEN", "CIN_TOKEN_KEY", "ADMIN_TELEGRAM_ID"}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// CheckRequired returns the names of required variables that are not set.
func CheckRequired() []string {
	var missing []string
	for _, name := range requiredVars {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Load reads the configuration. Required variables must be set; see
// CheckRequired.
func Load() (*Config, error) {
	if missing := CheckRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	adminID, err := strconv.ParseInt(os.Getenv("ADMIN_TELEGRAM_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID must be a valid integer: %w", err)
	}

	cfg := &Config{
		BotToken:     os.Getenv("BOT_TOKEN"),
		TokenKey:     os.Getenv("CIN_TOKEN_KEY"),
		AdminID:      adminID,
		UploadURL:    getEnv("CIN_UPLOAD_URL", "http://localhost:5000"),
		AuthURL:      getEnv("CIN_AUTH_URL", "http://localhost:5001"),
		DBPath:       getEnv("CIN_DB_PATH", "sessions.db"),
		AdminAddr:    getEnv("CIN_ADMIN_ADDR", ":9090"),
		Extractor:    strings.ToLower(getEnv("CIN_EXTRACTOR", ExtractorRemote)),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
	}

	if cfg.PreviewWidth, err = getFloat("CIN_PREVIEW_WIDTH", 411); err != nil {
		return nil, err
	}
	if cfg.PreviewHeight, err = getFloat("CIN_PREVIEW_HEIGHT", 731); err != nil {
		return nil, err
	}

	days, err := strconv.Atoi(getEnv("CIN_RETENTION_DAYS", "30"))
	if err != nil || days < 0 {
		return nil, fmt.Errorf("CIN_RETENTION_DAYS must be a non-negative integer")
	}
	cfg.Retention = time.Duration(days) * 24 * time.Hour

	switch cfg.Extractor {
	case ExtractorRemote:
	case ExtractorGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when CIN_EXTRACTOR=gemini")
		}
	default:
		return nil, fmt.Errorf("unknown CIN_EXTRACTOR %q", cfg.Extractor)
	}

	return cfg, nil
}

func getEnv(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func getFloat(name string, fallback float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s must be a positive number", name)
	}
	return f, nil
}
