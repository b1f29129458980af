package config

import (
	"fmt"
)

func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("security config: %w", err)
	}

	if err := c.Booking.Validate(); err != nil {
		return fmt.Errorf("booking config: %w", err)
	}

	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if c.JWTSecret == "" || c.JWTSecret == "your_jwt_secret" {
		return fmt.Errorf("jwt secret is required - set JWT_SECRET environment variable")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	return nil
}

func (c *BookingConfig) Validate() error {
	if c.UndoWindow < 0 {
		return fmt.Errorf("undo window cannot be negative")
	}
	if c.IdempotencyTTL < 0 {
		return fmt.Errorf("idempotency ttl cannot be negative")
	}
	return nil
}
