package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	appNameVar        = "APP_NAME"
	envVar            = "ENV"
	logLevelVar       = "LOG_LEVEL"
	apiBaseURLVar     = "API_BASE_URL"
	requestTimeoutVar = "REQUEST_TIMEOUT_SEC"
	refreshTimeoutVar = "REFRESH_TIMEOUT_SEC"
)

type EnvVars struct {
	appName  string
	env      string
	logLevel string
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.appName
}

func (e EnvVars) GetEnv() string {
	return e.env
}

func (e EnvVars) GetLogLevel() string {
	return e.logLevel
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvInt(envVar string, defaultValue int) (int, error) {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", envVar, value)
	}
	return n, nil
}

func GetEnvBool(envVar string, defaultValue bool) (bool, error) {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", envVar, value)
	}
	return b, nil
}

// GetEnvSeconds reads a whole number of seconds. Negative values are rejected.
func GetEnvSeconds(envVar string, defaultSeconds int) (time.Duration, error) {
	n, err := GetEnvInt(envVar, defaultSeconds)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be >= 0", envVar)
	}
	return time.Duration(n) * time.Second, nil
}
