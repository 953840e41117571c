// Package config loads service settings from the environment, reading a .env file first
// when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	HTTPAddr    string
	GRPCAddr    string
	GinMode     string
	LogLevel    string

	DatabaseURL string

	JWTSecret string
	JWTTTL    time.Duration

	RedisURL                string
	ConversationTTL         time.Duration
	ConversationMaxMessages int

	KafkaBrokers               []string
	KafkaTopicPurchaseRequests string
	OutboxPollInterval         time.Duration

	ConsulAddr string

	LLM LLMConfig

	RateLimitRPS   float64
	RateLimitBurst int

	ShutdownTimeout time.Duration
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Load reads .env (if present) and the environment. files overrides the .env lookup.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("loading env files: %w", err)
		}
	}

	r := reader{}
	cfg := Config{
		ServiceName: r.str("SERVICE_NAME", "procureflow"),
		HTTPAddr:    r.str("HTTP_ADDR", ":8080"),
		GRPCAddr:    r.str("GRPC_ADDR", ":9090"),
		GinMode:     r.str("GIN_MODE", gin.DebugMode),
		LogLevel:    r.str("LOG_LEVEL", "info"),

		DatabaseURL: r.str("DATABASE_URL", ""),

		JWTSecret: r.str("JWT_SECRET", ""),
		JWTTTL:    r.duration("JWT_TTL", time.Hour),

		RedisURL:                r.str("REDIS_URL", ""),
		ConversationTTL:         r.duration("CONVERSATION_TTL", 24*time.Hour),
		ConversationMaxMessages: r.int("CONVERSATION_MAX_MESSAGES", 200),

		KafkaBrokers:               r.list("KAFKA_BROKERS"),
		KafkaTopicPurchaseRequests: r.str("KAFKA_TOPIC_PURCHASE_REQUESTS", "procureflow.purchase-request.created"),
		OutboxPollInterval:         r.duration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		ConsulAddr: r.str("CONSUL_HTTP_ADDR", ""),

		LLM: LLMConfig{
			APIKey:  r.str("AGENT_LLM_API_KEY", ""),
			BaseURL: r.str("AGENT_LLM_BASE_URL", "https://api.openai.com/v1"),
			Model:   r.str("AGENT_LLM_MODEL", "gpt-4o-mini"),
			Timeout: r.duration("AGENT_LLM_TIMEOUT", 30*time.Second),
		},

		RateLimitRPS:   r.float("RATE_LIMIT_RPS", 0),
		RateLimitBurst: r.int("RATE_LIMIT_BURST", 20),

		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	switch c.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("GIN_MODE %q is not one of debug, release, test", c.GinMode))
	}
	if c.ConversationMaxMessages <= 0 {
		errs = append(errs, errors.New("CONVERSATION_MAX_MESSAGES must be positive"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative"))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be at least 1 when RATE_LIMIT_RPS is set"))
	}
	return errors.Join(errs...)
}

// RequireJWT reports whether the settings needed to serve authenticated traffic are present.
func (c Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	return nil
}

type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
