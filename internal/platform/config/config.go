package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads env files into the process environment. With no arguments it
// loads ".env" from the working directory; a missing file is reported as an
// error, which callers ignore when the system environment is enough.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the named environment variable, or fallback if it is unset
// or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the named environment variable as an int, or fallback if
// it is unset, empty, or not an integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the named environment variable as a bool, or fallback if
// it is unset, empty, or not parseable ("1", "t", "true" and friends).
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
