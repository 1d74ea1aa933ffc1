// Package config reads portal settings from the environment. Typed
// getters fall back to a default on unset or unparseable values, so a
// bad variable degrades to the default instead of failing startup.
package config

import (
	"log"
	"os"
	"strconv"
)

// GetString returns the named environment variable, or fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt parses the named environment variable as an integer.
func GetInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: %s is not an integer, using default %d: %v", key, fallback, err)
		return fallback
	}
	return parsed
}

// GetBool parses the named environment variable as a boolean.
func GetBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("config: %s is not a boolean, using default %t: %v", key, fallback, err)
		return fallback
	}
	return parsed
}
