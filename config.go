package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultTicketCategory = "tickets"
	defaultRedisKey       = "ticket_ledger:state"

	backendFile     = "file"
	backendPostgres = "postgres"
	backendRedis    = "redis"
)

type Config struct {
	DiscordToken     string  `yaml:"discord_token"`
	ApplicationID    string  `yaml:"application_id"`
	PublicKey        string  `yaml:"public_key"`
	DiscordRateLimit float64 `yaml:"discord_rate_limit"`

	GuildID        string   `yaml:"guild_id"`
	OwnerID        string   `yaml:"owner_id"`
	AdminRoleIDs   []string `yaml:"admin_role_ids"`
	TicketCategory string   `yaml:"ticket_category"`

	StateBackend   string `yaml:"state_backend"`
	StatePath      string `yaml:"state_path"`
	DatabaseURL    string `yaml:"database_url"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisKey       string `yaml:"redis_key"`
	ResetOnCorrupt bool   `yaml:"reset_on_corrupt"`

	SyncCommands bool   `yaml:"sync_commands"`
	Port         string `yaml:"port"`
	AppEnv       string `yaml:"app_env"`
}

func defaultConfig() Config {
	return Config{
		DiscordRateLimit: 5,
		TicketCategory:   defaultTicketCategory,
		StateBackend:     backendFile,
		StatePath:        "data.json",
		RedisKey:         defaultRedisKey,
		SyncCommands:     true,
		Port:             "8080",
		AppEnv:           "local",
	}
}

// LoadConfig reads CONFIG_PATH (if set) over the defaults, then the
// environment over that.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Annotatef(err, "reading config file %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Annotatef(err, "parsing config file %s", path)
		}
	}

	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.ApplicationID = envString("DISCORD_APPLICATION_ID", cfg.ApplicationID)
	cfg.PublicKey = envString("DISCORD_PUBLIC_KEY", cfg.PublicKey)
	cfg.DiscordRateLimit = parseEnvFloat("DISCORD_RATE_LIMIT", cfg.DiscordRateLimit)

	cfg.GuildID = envString("GUILD_ID", cfg.GuildID)
	cfg.OwnerID = envString("OWNER_ID", cfg.OwnerID)
	if roles := os.Getenv("ADMIN_ROLE_IDS"); roles != "" {
		cfg.AdminRoleIDs = splitList(roles)
	}
	cfg.TicketCategory = envString("TICKET_CATEGORY_NAME", cfg.TicketCategory)

	cfg.StateBackend = strings.ToLower(envString("STATE_BACKEND", cfg.StateBackend))
	cfg.StatePath = envString("STATE_PATH", cfg.StatePath)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = parseEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.RedisKey = envString("REDIS_KEY", cfg.RedisKey)
	cfg.ResetOnCorrupt = envFlag("STATE_RESET_ON_CORRUPT", cfg.ResetOnCorrupt)

	cfg.SyncCommands = envFlag("SYNC_COMMANDS", cfg.SyncCommands)
	cfg.Port = envString("PORT", cfg.Port)
	cfg.AppEnv = envString("APP_ENV", cfg.AppEnv)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DiscordToken == "" {
		return errors.NotValidf("empty DISCORD_TOKEN")
	}
	if !isValidSnowflake(c.ApplicationID) {
		return errors.NotValidf("DISCORD_APPLICATION_ID %q", c.ApplicationID)
	}
	if c.PublicKey == "" {
		return errors.NotValidf("empty DISCORD_PUBLIC_KEY")
	}
	if !isValidSnowflake(c.GuildID) {
		return errors.NotValidf("GUILD_ID %q", c.GuildID)
	}
	if !isValidSnowflake(c.OwnerID) {
		return errors.NotValidf("OWNER_ID %q", c.OwnerID)
	}
	for _, role := range c.AdminRoleIDs {
		if !isValidSnowflake(role) {
			return errors.NotValidf("admin role id %q", role)
		}
	}
	if c.DiscordRateLimit <= 0 {
		return errors.NotValidf("DISCORD_RATE_LIMIT %v", c.DiscordRateLimit)
	}
	if strings.TrimSpace(c.TicketCategory) == "" {
		return errors.NotValidf("empty TICKET_CATEGORY_NAME")
	}

	switch c.StateBackend {
	case backendFile:
		if c.StatePath == "" {
			return errors.NotValidf("empty STATE_PATH")
		}
	case backendPostgres:
		if c.DatabaseURL == "" {
			return errors.NotValidf("STATE_BACKEND=postgres without DATABASE_URL")
		}
	case backendRedis:
		if c.RedisAddr == "" {
			return errors.NotValidf("STATE_BACKEND=redis without REDIS_ADDR")
		}
		if c.RedisKey == "" {
			return errors.NotValidf("empty REDIS_KEY")
		}
	default:
		return errors.NotValidf("STATE_BACKEND %q", c.StateBackend)
	}
	return nil
}

func (c Config) listenAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func envString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envFlag(name string, fallback bool) bool {
	val := os.Getenv(name)
	if val == "" {
		return fallback
	}
	parsed, err := parseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
