package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrBackupInProgress = errors.New("backup already running")

// Locker grants at most one holder per key. Acquire never waits: a held key
// returns ErrBackupInProgress. The release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryLocker serializes runs inside this process
type MemoryLocker struct {
	locks sync.Map // key -> *sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string) (func(), error) {
	v, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, ErrBackupInProgress
	}
	return sync.OnceFunc(mu.Unlock), nil
}

// FileLocker serializes runs of every backupd process on this host through lock files in dir
type FileLocker struct {
	dir string
}

func NewFileLocker(dir string) *FileLocker {
	return &FileLocker{dir: dir}
}

// LockPath is the lock file used for key
func (l *FileLocker) LockPath(key string) string {
	name := strings.NewReplacer("/", "__", "@", "_", ":", "_").Replace(key)
	return filepath.Join(l.dir, name+".lock")
}

func (l *FileLocker) Acquire(_ context.Context, key string) (func(), error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir %s: %w", l.dir, err)
	}

	fl := flock.New(l.LockPath(key))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, ErrBackupInProgress
	}

	return sync.OnceFunc(func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("file lock release", "path", fl.Path(), "error", err)
		}
	}), nil
}

var (
	// deletes the key only while it still holds our token
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	// pushes the expiry out only while the key still holds our token
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

const redisKeyPrefix = "backupd:lock:"

// RedisLocker is a lease shared by every backupd instance using the same redis.
// The lease expires after ttl unless the holder is alive to extend it.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// NewRedisLockerFromURL parses a redis:// url
func NewRedisLockerFromURL(url string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisLocker(redis.NewClient(opts), ttl), nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrBackupInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	return sync.OnceFunc(func() {
		close(stop)
		<-done

		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			slog.Warn("redis lease release", "key", redisKey, "error", err)
		}
	}), nil
}

func (l *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := extendScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				slog.Warn("redis lease extend", "key", redisKey, "error", err)
			} else if n == 0 {
				slog.Error("redis lease lost", "key", redisKey)
				return
			}
		}
	}
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// ChainLocker acquires every locker in order and releases them in reverse
type ChainLocker []Locker

func (c ChainLocker) Acquire(ctx context.Context, key string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, locker := range c {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}

	return sync.OnceFunc(releaseAll), nil
}
