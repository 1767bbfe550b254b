package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	KPolicyFixed    = "fixed"
	KPolicyAdaptive = "adaptive"

	maxLeaderboardLimit = 100
)

// SeedPlayer игрок, создаваемый при старте
type SeedPlayer struct {
	Name    string
	IsAdmin bool
}

// Config настройки сервиса
type Config struct {
	HTTPAddr string
	AppEnv   string

	StorageBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	DatabaseURL    string // путь к файлу SQLite или DSN Postgres

	KFactor int
	KPolicy string

	LeaderboardMinMatches int
	LeaderboardLimit      int

	SeedPlayers []SeedPlayer
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		AppEnv:         getEnv("APP_ENV", "production"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory)),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		KPolicy:        strings.ToLower(getEnv("ELO_K_POLICY", KPolicyFixed)),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.KFactor, err = getEnvInt("ELO_K_FACTOR", 32); err != nil {
		return nil, err
	}
	if cfg.LeaderboardMinMatches, err = getEnvInt("LEADERBOARD_MIN_MATCHES", 1); err != nil {
		return nil, err
	}
	if cfg.LeaderboardLimit, err = getEnvInt("LEADERBOARD_LIMIT", 50); err != nil {
		return nil, err
	}
	cfg.SeedPlayers = parseSeedPlayers(os.Getenv("SEED_PLAYERS"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Development включает читаемые логи
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// AdaptiveK сообщает, выбрана ли адаптивная политика K-фактора
func (c *Config) AdaptiveK() bool {
	return c.KPolicy == KPolicyAdaptive
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendRedis:
	case BackendSQLite:
		if c.DatabaseURL == "" {
			c.DatabaseURL = "pingpong.db"
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("missing DATABASE_URL for postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.KPolicy {
	case KPolicyFixed, KPolicyAdaptive:
	default:
		return fmt.Errorf("unknown ELO_K_POLICY %q", c.KPolicy)
	}

	if c.KFactor <= 0 {
		return fmt.Errorf("ELO_K_FACTOR must be positive, got %d", c.KFactor)
	}
	if c.LeaderboardMinMatches < 0 {
		c.LeaderboardMinMatches = 0
	}
	if c.LeaderboardLimit <= 0 {
		return fmt.Errorf("LEADERBOARD_LIMIT must be positive, got %d", c.LeaderboardLimit)
	}
	if c.LeaderboardLimit > maxLeaderboardLimit {
		c.LeaderboardLimit = maxLeaderboardLimit
	}
	return nil
}

// Redacted описание конфигурации без секретов
func (c *Config) Redacted() string {
	pass := "[empty]"
	if c.RedisPassword != "" {
		pass = "[set]"
	}
	dsn := "[empty]"
	if c.DatabaseURL != "" {
		dsn = "[set]"
	}
	return fmt.Sprintf(
		"addr=%s env=%s backend=%s redis=%s redisPassword=%s redisDB=%d databaseURL=%s k=%d policy=%s minMatches=%d limit=%d seeds=%d",
		c.HTTPAddr, c.AppEnv, c.StorageBackend, c.RedisAddr, pass, c.RedisDB, dsn,
		c.KFactor, c.KPolicy, c.LeaderboardMinMatches, c.LeaderboardLimit, len(c.SeedPlayers),
	)
}

// parseSeedPlayers разбирает список "alice,bob:admin"
func parseSeedPlayers(raw string) []SeedPlayer {
	var seeds []SeedPlayer
	seen := make(map[string]bool)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		seed := SeedPlayer{Name: item}
		if name, role, ok := strings.Cut(item, ":"); ok {
			seed.Name = strings.TrimSpace(name)
			seed.IsAdmin = strings.EqualFold(strings.TrimSpace(role), "admin")
		}
		if seed.Name == "" || seen[seed.Name] {
			continue
		}
		seen[seed.Name] = true
		seeds = append(seeds, seed)
	}
	return seeds
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
