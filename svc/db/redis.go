package db

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"cinderbin/cfg"
	"cinderbin/pkg/domain"
)

// Redis is an optional second cache tier for upload records on the download
// path. Upload rows are immutable once written, so cached copies only need
// the wall-clock expiry check at read time.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedis(url string, c *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if c.RedisUsername != "" {
		opt.Username = c.RedisUsername
	}
	if c.RedisPassword.Value() != "" {
		opt.Password = c.RedisPassword.Value()
	}
	if c.RedisTLS && opt.TLSConfig == nil {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.MaxRetries = 3
	client := redis.NewClient(opt)
	r := &Redis{client: client, timeout: c.RedisTimeout}
	pingCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return r, nil
}

func uploadKey(id string) string { return "upload:" + id }

func (r *Redis) CacheUpload(ctx context.Context, u *domain.Upload, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "marshal upload")
	}
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return errors.Wrap(r.client.Set(opCtx, uploadKey(u.ID), data, ttl).Err(), "cache upload")
}

// GetUpload returns (nil, nil) on a cache miss.
func (r *Redis) GetUpload(ctx context.Context, id string) (*domain.Upload, error) {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	data, err := r.client.Get(opCtx, uploadKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get upload")
	}
	var u domain.Upload
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, errors.Wrap(err, "unmarshal upload")
	}
	return &u, nil
}

func (r *Redis) DeleteUpload(ctx context.Context, id string) error {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return errors.Wrap(r.client.Del(opCtx, uploadKey(id)).Err(), "del upload")
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
