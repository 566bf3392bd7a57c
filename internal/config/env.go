package config

import (
	"os"
	"strconv"
	"time"

	"github.com/mediasearch/mediasearch/internal/log"
)

// envString reads an environment variable, logging the source (env vs
// default) the way the teacher's internal/config/env.go does.
func envString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logger.Debug().Str("key", key).Str("source", "environment").Msg("using environment variable")
		return v
	}
	logger.Debug().Str("key", key).Str("default", defaultValue).Str("source", "default").Msg("using default value")
	return defaultValue
}

func envBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment variable, using default")
	}
	return defaultValue
}

func envSeconds(key string, defaultValue time.Duration) time.Duration {
	return time.Duration(envInt(key, int(defaultValue/time.Second))) * time.Second
}

func envFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid float in environment variable, using default")
	}
	return defaultValue
}
