package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Environment   string              `json:"environment"`
	Database      DatabaseConfig      `json:"database"`
	Server        ServerConfig        `json:"server"`
	Redis         RedisConfig         `json:"redis"`
	Security      SecurityConfig      `json:"security"`
	Stripe        StripeConfig        `json:"stripe"`
	Booking       BookingConfig       `json:"booking"`
	Resilience    ResilienceConfig    `json:"resilience"`
	Collaborators CollaboratorsConfig `json:"collaborators"`
}

type DatabaseConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	User         string        `json:"user"`
	Password     string        `json:"password"`
	DBName       string        `json:"dbname"`
	SSLMode      string        `json:"sslmode"`
	MaxOpenConns int           `json:"max_open_conns"`
	MaxIdleConns int           `json:"max_idle_conns"`
	MaxLifetime  time.Duration `json:"max_lifetime"`
	MaxIdleTime  time.Duration `json:"max_idle_time"`
}

type ServerConfig struct {
	Port           string        `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	MaxHeaderBytes int           `json:"max_header_bytes"`
}

type RedisConfig struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
	PoolSize int           `json:"pool_size"`
}

type SecurityConfig struct {
	JWTSecret      string        `json:"jwt_secret"`
	JWTIssuer      string        `json:"jwt_issuer"`
	JWTAudience    string        `json:"jwt_audience"`
	SessionTTL     time.Duration `json:"session_ttl"`
	RateLimitRPS   float64       `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
}

type StripeConfig struct {
	Secret string `json:"secret"`
	Public string `json:"public"`
}

// BookingConfig tunes the mutation-safety behavior: how long an archived
// booking stays undoable and how long a completed mutation suppresses
// duplicates.
type BookingConfig struct {
	UndoWindow     time.Duration `json:"undo_window"`
	IdempotencyTTL time.Duration `json:"idempotency_ttl"`
}

type ResilienceConfig struct {
	CollaboratorTimeout time.Duration `json:"collaborator_timeout"`
	RetryAttempts       int           `json:"retry_attempts"`
	BackoffBase         time.Duration `json:"backoff_base"`
	BackoffCap          time.Duration `json:"backoff_cap"`
	BreakerThreshold    int           `json:"breaker_threshold"`
	BreakerResetTimeout time.Duration `json:"breaker_reset_timeout"`
}

type CollaboratorsConfig struct {
	CalendarURL string `json:"calendar_url"`
	ChatURL     string `json:"chat_url"`
	TrackerURL  string `json:"tracker_url"`
}

func LoadConfig() (*Config, error) {
	config := &Config{}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	config.Environment = env

	configDir, err := filepath.Abs("config")
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.json")

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}

		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	config.loadFromEnv()
	config.setDefaults()

	return config, nil
}

func (c *Config) loadFromEnv() {
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Database.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		c.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		c.Database.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		c.Database.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		c.Database.SSLMode = sslmode
	}

	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		c.Server.Port = serverPort
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		c.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			c.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.Security.JWTSecret = jwtSecret
	}

	if stripeSecret := os.Getenv("STRIPE_SECRET"); stripeSecret != "" {
		c.Stripe.Secret = stripeSecret
	}
	if stripePublic := os.Getenv("STRIPE_PUBLIC"); stripePublic != "" {
		c.Stripe.Public = stripePublic
	}

	if calendarURL := os.Getenv("CALENDAR_URL"); calendarURL != "" {
		c.Collaborators.CalendarURL = calendarURL
	}
	if chatURL := os.Getenv("CHAT_URL"); chatURL != "" {
		c.Collaborators.ChatURL = chatURL
	}
	if trackerURL := os.Getenv("TRACKER_URL"); trackerURL != "" {
		c.Collaborators.TrackerURL = trackerURL
	}
}

func (c *Config) setDefaults() {
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxLifetime == 0 {
		c.Database.MaxLifetime = time.Hour
	}
	if c.Database.MaxIdleTime == 0 {
		c.Database.MaxIdleTime = 10 * time.Minute
	}

	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Redis.TTL == 0 {
		c.Redis.TTL = time.Hour
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	if c.Security.JWTIssuer == "" {
		c.Security.JWTIssuer = "reserva"
	}
	if c.Security.JWTAudience == "" {
		c.Security.JWTAudience = "reserva-api"
	}
	if c.Security.SessionTTL == 0 {
		c.Security.SessionTTL = 30 * 24 * time.Hour
	}
	if c.Security.RateLimitRPS == 0 {
		c.Security.RateLimitRPS = 100.0
	}
	if c.Security.RateLimitBurst == 0 {
		c.Security.RateLimitBurst = 200
	}

	if c.Booking.UndoWindow == 0 {
		c.Booking.UndoWindow = 10 * time.Second
	}
	if c.Booking.IdempotencyTTL == 0 {
		c.Booking.IdempotencyTTL = 5 * time.Minute
	}

	if c.Resilience.CollaboratorTimeout == 0 {
		c.Resilience.CollaboratorTimeout = 5 * time.Second
	}
	if c.Resilience.RetryAttempts == 0 {
		c.Resilience.RetryAttempts = 3
	}
	if c.Resilience.BackoffBase == 0 {
		c.Resilience.BackoffBase = 100 * time.Millisecond
	}
	if c.Resilience.BackoffCap == 0 {
		c.Resilience.BackoffCap = 10 * time.Second
	}
	if c.Resilience.BreakerThreshold == 0 {
		c.Resilience.BreakerThreshold = 5
	}
	if c.Resilience.BreakerResetTimeout == 0 {
		c.Resilience.BreakerResetTimeout = 30 * time.Second
	}
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
