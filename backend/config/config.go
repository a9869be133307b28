// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MemoryURL selects the in-process store or feed in place of postgres or redis.
const MemoryURL = "memory://"

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	JWTIssuer   string
	LogLevel    string

	AllowedOrigins []string

	MessagePageSize  int
	RotationAttempts int
	DecryptWorkers   int
	HTTPTimeout      time.Duration
}

// Load reads configuration from the environment, after a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	pageSize, err := getEnvInt("MESSAGE_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	attempts, err := getEnvInt("ROTATION_ATTEMPTS", 2)
	if err != nil {
		return nil, err
	}
	workers, err := getEnvInt("DECRYPT_WORKERS", 8)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvDuration("HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:             getEnv("PORT", "8081"),
		DatabaseURL:      getEnv("DATABASE_URL", "postgres://localhost/efepoch?sslmode=disable"),
		RedisURL:         getEnv("REDIS_URL", "localhost:6379"),
		JWTSecret:        jwtSecret,
		JWTIssuer:        getEnv("JWT_ISSUER", "efchat"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "https://efchat.net,https://app.efchat.net,http://localhost:3000")),
		MessagePageSize:  pageSize,
		RotationAttempts: attempts,
		DecryptWorkers:   workers,
		HTTPTimeout:      timeout,
	}, nil
}

func (c *Config) MemoryStore() bool {
	return strings.HasPrefix(c.DatabaseURL, MemoryURL)
}

func (c *Config) MemoryFeed() bool {
	return c.RedisURL == "" || strings.HasPrefix(c.RedisURL, MemoryURL)
}

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
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, value)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
