package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
)

// TableLocker serializes schema mutations per physical table.
type TableLocker interface {
	// Lock acquires the lock for table, waiting at most the configured lock
	// wait. It returns apperrors.ErrSchemaBusy when the table stays locked.
	// The returned function releases the lock.
	Lock(ctx context.Context, table string) (func(), error)
}

type localTableLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

// NewLocalTableLocker returns a locker scoped to this process.
func NewLocalTableLocker(wait time.Duration) TableLocker {
	return &localTableLocker{
		slots: make(map[string]chan struct{}),
		wait:  wait,
	}
}

func (l *localTableLocker) slot(table string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[table]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[table] = s
	}
	return s
}

func (l *localTableLocker) Lock(ctx context.Context, table string) (func(), error) {
	s := l.slot(table)
	release := func() { <-s }

	select {
	case s <- struct{}{}:
		return release, nil
	default:
	}
	if l.wait <= 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSchemaBusy, table)
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case s <- struct{}{}:
		return release, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSchemaBusy, table)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ TableLocker = (*localTableLocker)(nil)

const (
	redisLockPrefix   = "ekaya-schema:lock:"
	redisLockInterval = 50 * time.Millisecond
)

// Deletes the key only while it still holds this holder's token.
var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type redisTableLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisTableLocker returns a locker shared by every process using the
// same Redis. ttl bounds how long a crashed holder keeps a table locked.
func NewRedisTableLocker(client *redis.Client, ttl, wait time.Duration, logger *zap.Logger) TableLocker {
	return &redisTableLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: logger.Named("table-lock"),
	}
}

func (l *redisTableLocker) Lock(ctx context.Context, table string) (func(), error) {
	key := redisLockPrefix + table
	token, err := lockToken()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock for %s: %w", table, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrSchemaBusy, table)
		}
		select {
		case <-time.After(redisLockInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	release := func() {
		// The caller's context may already be cancelled; the key must still go.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisUnlockScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("Failed to release table lock",
				zap.String("table", table),
				zap.Error(err))
		}
	}
	return release, nil
}

func lockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

var _ TableLocker = (*redisTableLocker)(nil)
