package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jobrun/blobcache/internal/blobkey"
)

// Index is an optional latency accelerator over FileStore.lookup. It is
// never the source of truth: a miss, or "not consulted", must always fall
// through to a disk stat. Implementations must not block lookup for long;
// FileStore gives them a short-lived context.
type Index interface {
	// Contains reports whether key is recorded in the index. The second
	// return value is false when the index could not be consulted at all
	// (e.g. connection down), in which case the caller must ignore the
	// first value and fall back to disk.
	Contains(ctx context.Context, key blobkey.Key) (present bool, consulted bool)

	// Add records key in the index, best-effort. Failures are logged by
	// the implementation and never propagated.
	Add(ctx context.Context, key blobkey.Key)

	// Close releases any resources held by the index.
	Close() error
}

// NoopIndex never has an answer, so FileStore.lookup always falls back to
// disk. It is the default when no index backend is configured.
type NoopIndex struct{}

func (NoopIndex) Contains(context.Context, blobkey.Key) (bool, bool) { return false, false }
func (NoopIndex) Add(context.Context, blobkey.Key)                   {}
func (NoopIndex) Close() error                                       { return nil }

// RedisIndex records promoted keys as members of a Redis SET, namespaced per
// role so a server and a proxy sharing a Redis instance don't collide.
type RedisIndex struct {
	client *redis.Client
	setKey string
	log    *logrus.Entry
}

// NewRedisIndex constructs a RedisIndex backed by client, scoped to the
// given role name ("server" or "proxy").
func NewRedisIndex(client *redis.Client, role string, log *logrus.Logger) *RedisIndex {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisIndex{
		client: client,
		setKey: "blobcache:" + role + ":keys",
		log:    log.WithField("component", "index"),
	}
}

func (r *RedisIndex) Contains(ctx context.Context, key blobkey.Key) (bool, bool) {
	present, err := r.client.SIsMember(ctx, r.setKey, key.Hex()).Result()
	if err != nil {
		r.log.WithError(err).WithField("key", key.Hex()).Debug("index contains check failed, falling back to disk")
		return false, false
	}
	return present, true
}

func (r *RedisIndex) Add(ctx context.Context, key blobkey.Key) {
	if err := r.client.SAdd(ctx, r.setKey, key.Hex()).Err(); err != nil {
		r.log.WithError(err).WithField("key", key.Hex()).Warn("index add failed, disk remains source of truth")
	}
}

func (r *RedisIndex) Close() error {
	return r.client.Close()
}

// indexTimeout bounds how long a lookup will wait on the index before
// falling back to disk; the index exists to make lookups faster, never
// slower.
const indexTimeout = 50 * time.Millisecond
