package config

import (
	"fmt"
	"time"
)

const (
	portVar               = "PORT"
	tokenSecretVar        = "DEV_TOKEN_SECRET"
	accessTokenExpiryVar  = "DEV_ACCESS_TOKEN_EXPIRY_SEC"
	refreshTokenExpiryVar = "DEV_REFRESH_TOKEN_EXPIRY_SEC"
	rotateRefreshVar      = "DEV_ROTATE_REFRESH_TOKENS"
)

// DevServerConfig configures the development auth backend.
type DevServerConfig interface {
	GetPort() string
	GetTokenSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRotateRefreshTokens() bool
	GetRefreshTokenLength() int
}

type DevServer struct {
	port               string
	tokenSecret        string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	rotateRefresh      bool
}

var _ DevServerConfig = DevServer{}

func loadDevServer() (DevServer, error) {
	d := DevServer{
		port:        GetEnv(portVar, "8080"),
		tokenSecret: GetEnv(tokenSecretVar, "dev-secret-change-me"),
	}
	if d.port[0] != ':' {
		d.port = ":" + d.port
	}

	var err error
	if d.accessTokenExpiry, err = GetEnvSeconds(accessTokenExpiryVar, 900); err != nil {
		return DevServer{}, err
	}
	if d.refreshTokenExpiry, err = GetEnvSeconds(refreshTokenExpiryVar, 7*24*3600); err != nil {
		return DevServer{}, err
	}
	if d.accessTokenExpiry == 0 || d.refreshTokenExpiry == 0 {
		return DevServer{}, fmt.Errorf("%s and %s must be > 0", accessTokenExpiryVar, refreshTokenExpiryVar)
	}
	if d.rotateRefresh, err = GetEnvBool(rotateRefreshVar, true); err != nil {
		return DevServer{}, err
	}
	return d, nil
}

func (d DevServer) GetPort() string {
	return d.port
}

func (d DevServer) GetTokenSecret() string {
	return d.tokenSecret
}

func (d DevServer) GetAccessTokenExpiry() time.Duration {
	return d.accessTokenExpiry
}

func (d DevServer) GetRefreshTokenExpiry() time.Duration {
	return d.refreshTokenExpiry
}

func (d DevServer) GetRotateRefreshTokens() bool {
	return d.rotateRefresh
}

func (DevServer) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}
