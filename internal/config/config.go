package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Mongo       MongoConfig     `mapstructure:"mongo"`
	Redis       RedisConfig     `mapstructure:"redis"`
	JWT         JWTConfig       `mapstructure:"jwt"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Booking     BookingConfig   `mapstructure:"booking"`
	Email       EmailConfig     `mapstructure:"email"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	CORS        CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BodyLimit    int64         `mapstructure:"body_limit"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret           string        `mapstructure:"secret"`
	Expiry           time.Duration `mapstructure:"expiry"`
	CookieName       string        `mapstructure:"cookie_name"`
	CookieExpiryDays int           `mapstructure:"cookie_expiry_days"`
	CookieSecure     bool          `mapstructure:"cookie_secure"`
}

type AuthConfig struct {
	OTPExpiry         time.Duration `mapstructure:"otp_expiry"`
	OTPResendCooldown time.Duration `mapstructure:"otp_resend_cooldown"`
	ResetTokenExpiry  time.Duration `mapstructure:"reset_token_expiry"`
	VerifyTokenExpiry time.Duration `mapstructure:"verify_token_expiry"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
}

type BookingConfig struct {
	HorizonDays int    `mapstructure:"horizon_days"`
	SlotMinutes int    `mapstructure:"slot_minutes"`
	Timezone    string `mapstructure:"timezone"`
}

// Location resolves the clinic time zone used for weekdays and day bounds.
func (c BookingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	AuthPerMinute     int     `mapstructure:"auth_per_minute"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.body_limit", 10*1024)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "clinic")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "clinic")
	v.SetDefault("mongo.timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	// AutomaticEnv only overlays keys viper already knows about
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", 90*24*time.Hour)
	v.SetDefault("jwt.cookie_name", "jwt")
	v.SetDefault("jwt.cookie_expiry_days", 90)
	v.SetDefault("jwt.cookie_secure", false)

	v.SetDefault("auth.otp_expiry", 10*time.Minute)
	v.SetDefault("auth.otp_resend_cooldown", time.Minute)
	v.SetDefault("auth.reset_token_expiry", 10*time.Minute)
	v.SetDefault("auth.verify_token_expiry", 20*time.Minute)
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("booking.horizon_days", 30)
	v.SetDefault("booking.slot_minutes", 15)
	v.SetDefault("booking.timezone", "Asia/Tehran")

	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "Clinic <no-reply@clinic.local>")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.auth_per_minute", 20)
}

// LoadConfig reads config.yml from path (or ./config) and overlays the
// environment, e.g. JWT_SECRET or DATABASE_HOST.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Booking.SlotMinutes <= 0 || c.Booking.HorizonDays <= 0 {
		return fmt.Errorf("booking.slot_minutes and booking.horizon_days must be positive")
	}
	if _, err := c.Booking.Location(); err != nil {
		return err
	}
	return nil
}
