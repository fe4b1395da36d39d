package config

import (
	"fmt"
	"strings"
)

const (
	sessionStoreVar  = "SESSION_STORE"
	sessionFileVar   = "SESSION_FILE"
	redisAddrVar     = "REDIS_ADDR"
	redisPasswordVar = "REDIS_PASSWORD"
	redisDBVar       = "REDIS_DB"
)

// Session storage backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type StorageConfig interface {
	GetSessionStore() string
	GetSessionFile() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct {
	store         string
	file          string
	redisAddr     string
	redisPassword string
	redisDB       int
}

var _ StorageConfig = Storage{}

func loadStorage() (Storage, error) {
	s := Storage{
		store:         strings.ToLower(GetEnv(sessionStoreVar, StoreFile)),
		file:          GetEnv(sessionFileVar, "./data/session.json"),
		redisAddr:     GetEnv(redisAddrVar, ""),
		redisPassword: GetEnv(redisPasswordVar, ""),
	}

	var err error
	if s.redisDB, err = GetEnvInt(redisDBVar, 0); err != nil {
		return Storage{}, err
	}

	switch s.store {
	case StoreFile:
		if strings.TrimSpace(s.file) == "" {
			return Storage{}, fmt.Errorf("%s must not be empty", sessionFileVar)
		}
	case StoreRedis:
		if s.redisAddr == "" {
			return Storage{}, fmt.Errorf("%s is required when %s=redis", redisAddrVar, sessionStoreVar)
		}
	case StoreMemory:
	default:
		return Storage{}, fmt.Errorf("%s must be one of file, redis, memory; got %q", sessionStoreVar, s.store)
	}
	return s, nil
}

func (s Storage) GetSessionStore() string {
	return s.store
}

func (s Storage) GetSessionFile() string {
	return s.file
}

func (s Storage) GetRedisAddr() string {
	return s.redisAddr
}

func (s Storage) GetRedisPassword() string {
	return s.redisPassword
}

func (s Storage) GetRedisDB() int {
	return s.redisDB
}
