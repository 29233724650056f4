package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single-use exclusive lock on one key.
// A lock instance is not safe for concurrent use; build one per caller.
type DistLock interface {
	// Acquire tries to take the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release drops the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// NewLock picks Redis when a client is configured, otherwise a
// PostgreSQL advisory lock on db.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// Factory builds locks against a fixed backend pair so callers only
// supply the key.
type Factory struct {
	redis  *redis.Client
	db     *sql.DB
	prefix string
}

// NewFactory returns a Factory. prefix namespaces every key it builds.
func NewFactory(redisClient *redis.Client, db *sql.DB, prefix string) *Factory {
	return &Factory{redis: redisClient, db: db, prefix: prefix}
}

// Lock returns a fresh lock for key.
func (f *Factory) Lock(key string, ttl time.Duration) DistLock {
	if f.prefix != "" {
		key = f.prefix + ":" + key
	}
	return NewLock(f.redis, f.db, key, ttl)
}

// PGAdvisoryLock uses pg_try_advisory_lock. The lock is session scoped,
// so it is taken and released on one pinned connection. It has no TTL.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock hashes key into a 64-bit advisory lock ID.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
