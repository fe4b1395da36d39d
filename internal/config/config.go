package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config interface {
	EnvConfig
	ClientConfig
	StorageConfig
	DevServerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

// ClientConfig is consumed by the HTTP client and the auth service.
type ClientConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	Client
	Storage
	DevServer
}

// Load reads the environment once. The returned value never re-reads it.
func Load() (Config, error) {
	cfg := mainConfig{
		EnvVars: EnvVars{
			appName:  GetEnv(appNameVar, "TutorHub"),
			env:      GetEnv(envVar, "DEV"),
			logLevel: strings.ToLower(GetEnv(logLevelVar, "info")),
		},
	}

	var err error
	if cfg.Client, err = loadClient(); err != nil {
		return nil, err
	}
	if cfg.Storage, err = loadStorage(); err != nil {
		return nil, err
	}
	if cfg.DevServer, err = loadDevServer(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type Client struct {
	baseURL        string
	requestTimeout time.Duration
	refreshTimeout time.Duration
}

var _ ClientConfig = Client{}

func loadClient() (Client, error) {
	baseURL := strings.TrimRight(GetEnv(apiBaseURLVar, "http://localhost:8080"), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Client{}, fmt.Errorf("%s must be an absolute URL, got %q", apiBaseURLVar, baseURL)
	}

	requestTimeout, err := GetEnvSeconds(requestTimeoutVar, 30)
	if err != nil {
		return Client{}, err
	}
	refreshTimeout, err := GetEnvSeconds(refreshTimeoutVar, 10)
	if err != nil {
		return Client{}, err
	}
	if refreshTimeout <= 0 {
		return Client{}, fmt.Errorf("%s must be > 0", refreshTimeoutVar)
	}

	return Client{
		baseURL:        baseURL,
		requestTimeout: requestTimeout,
		refreshTimeout: refreshTimeout,
	}, nil
}

func (c Client) GetAPIBaseURL() string {
	return c.baseURL
}

func (c Client) GetRequestTimeout() time.Duration {
	return c.requestTimeout
}

func (c Client) GetRefreshTimeout() time.Duration {
	return c.refreshTimeout
}
