package config

import (
	"os"
	"strconv"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/constants"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string

	GameServerAPIURL string
	GameServerAPIKey string

	// Matchmaking policy.
	MatchSize     int
	MaxMMRSpread  int
	QueueTTL      time.Duration
	AcceptTimeout time.Duration
	PauseTimeout  time.Duration
	AFKBanMinutes int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:           getEnv("DB_PATH", "ranked.db"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		GameServerAPIURL: getEnv("GAME_SERVER_API_URL", "http://127.0.0.1:9090"),
		GameServerAPIKey: getEnv("GAME_SERVER_API_KEY", ""),
		MatchSize:        getEnvInt("MATCH_SIZE", constants.MatchSize),
		MaxMMRSpread:     getEnvInt("MAX_MMR_SPREAD", constants.MaxMMRSpread),
		QueueTTL:         getEnvDuration("QUEUE_TTL", constants.QueueTTL),
		AcceptTimeout:    getEnvDuration("ACCEPT_TIMEOUT", constants.AcceptTimeout),
		PauseTimeout:     getEnvDuration("PAUSE_TIMEOUT", constants.PauseTimeout),
		AFKBanMinutes:    getEnvInt("AFK_BAN_MINUTES", constants.AFKAcceptBanMins),
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Int("match_size", cfg.MatchSize).
		Int("max_mmr_spread", cfg.MaxMMRSpread).
		Dur("accept_timeout", cfg.AcceptTimeout).
		Dur("queue_ttl", cfg.QueueTTL).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
