package main

import (
	"github.com/jrsteele09/tutorhub-session/internal/config"
	"github.com/jrsteele09/tutorhub-session/session"
	"github.com/jrsteele09/tutorhub-session/session/filestore"
	"github.com/jrsteele09/tutorhub-session/session/redisstore"
	sessionrepofake "github.com/jrsteele09/tutorhub-session/session/repofake"
	"github.com/pkg/errors"
)

// openStorage picks the session backend. The returned closer may be nil.
func openStorage(c config.StorageConfig) (session.Storage, func() error, error) {
	switch c.GetSessionStore() {
	case config.StoreRedis:
		cfg := redisstore.Config{Addr: c.GetRedisAddr(), Password: c.GetRedisPassword(), DB: c.GetRedisDB()}
		client, err := redisstore.NewClient(cfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "[openStorage] redis")
		}
		return redisstore.New(client, cfg), client.Close, nil
	case config.StoreMemory:
		return sessionrepofake.NewFakeStorage(), nil, nil
	default:
		store, err := filestore.New(c.GetSessionFile())
		if err != nil {
			return nil, nil, errors.Wrap(err, "[openStorage] file")
		}
		return store, nil, nil
	}
}
