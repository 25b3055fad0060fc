package main

import (
	"context"
	"strconv"
	"time"

	"github.com/juju/errors"
	goredis "github.com/redis/go-redis/v9"
)

type redisBackend struct {
	client *goredis.Client
	key    string
	now    func() time.Time
}

func openRedisBackend(ctx context.Context, addr, password string, db int, key string) (*redisBackend, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Annotatef(err, "pinging redis at %s", addr)
	}
	return &redisBackend{client: client, key: key, now: time.Now}, nil
}

func (b *redisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err == goredis.Nil {
		return nil, errors.NotFoundf("redis key %s", b.key)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "reading redis key %s", b.key)
	}
	return data, nil
}

func (b *redisBackend) Save(ctx context.Context, data []byte) error {
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return errors.Annotatef(err, "writing redis key %s", b.key)
	}
	return nil
}

func (b *redisBackend) Quarantine(ctx context.Context) error {
	target := b.key + ":corrupt-" + strconv.FormatInt(b.now().Unix(), 10)
	if err := b.client.Rename(ctx, b.key, target).Err(); err != nil {
		return errors.Annotatef(err, "renaming redis key %s", b.key)
	}
	return nil
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}
