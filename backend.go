package main

import (
	"context"

	"github.com/juju/errors"
)

func openBackend(ctx context.Context, cfg Config, log *Logger) (SnapshotBackend, error) {
	switch cfg.StateBackend {
	case backendFile:
		log.Info("using file snapshot", "path", cfg.StatePath)
		return newFileBackend(cfg.StatePath), nil
	case backendPostgres:
		log.Info("using postgres snapshot")
		backend, err := openPostgresBackend(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case backendRedis:
		log.Info("using redis snapshot", "addr", cfg.RedisAddr, "key", cfg.RedisKey)
		backend, err := openRedisBackend(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, errors.NotSupportedf("state backend %q", cfg.StateBackend)
	}
}
