package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/invoice"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with a PING
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// ArtifactCacheConfig configures CachedArtifactStore
type ArtifactCacheConfig struct {
	KeyPrefix string
	TTL       time.Duration
	// MaxBytes bounds the size of a cached document; larger ones bypass the cache
	MaxBytes int64
	Logger   *zap.Logger
}

const (
	fieldData     = "data"
	fieldModified = "modified"
)

// CachedArtifactStore keeps recently rendered invoices in Redis in front of
// another ArtifactStore. Redis failures are logged and the call falls through
// to the underlying store.
type CachedArtifactStore struct {
	next      invoice.ArtifactStore
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	maxBytes  int64
	logger    *zap.Logger
}

// NewCachedArtifactStore wraps next with a Redis cache
func NewCachedArtifactStore(next invoice.ArtifactStore, client *redis.Client, cfg ArtifactCacheConfig) *CachedArtifactStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "invoice:artifact:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 2 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedArtifactStore{
		next:      next,
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		maxBytes:  cfg.MaxBytes,
		logger:    logger,
	}
}

// Write stores the document in the underlying store and caches the bytes that
// were written. The cache is only populated after the underlying write succeeds.
func (s *CachedArtifactStore) Write(ctx context.Context, name string, fn func(w io.Writer) error) (*invoice.ArtifactInfo, error) {
	tee := &limitedBuffer{max: s.maxBytes}
	info, err := s.next.Write(ctx, name, func(w io.Writer) error {
		return fn(io.MultiWriter(w, tee))
	})
	if err != nil {
		// a stale cached copy must not outlive a failed regeneration attempt
		s.evict(ctx, name)
		return nil, err
	}

	if tee.overflow {
		s.evict(ctx, name)
	} else {
		s.put(ctx, name, tee.buf.Bytes(), info.ModifiedAt)
	}
	return info, nil
}

// Open serves the document from Redis when cached, otherwise from the
// underlying store, caching documents small enough on the way through
func (s *CachedArtifactStore) Open(ctx context.Context, name string) (io.ReadCloser, *invoice.ArtifactInfo, error) {
	fields, err := s.client.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		s.logger.Warn("artifact cache read failed", zap.String("name", name), zap.Error(err))
	} else if data, ok := fields[fieldData]; ok {
		info := &invoice.ArtifactInfo{Name: name, Size: int64(len(data))}
		if unix, perr := strconv.ParseInt(fields[fieldModified], 10, 64); perr == nil {
			info.ModifiedAt = time.Unix(0, unix)
		}
		return io.NopCloser(bytes.NewReader([]byte(data))), info, nil
	}

	rc, info, err := s.next.Open(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if info.Size <= 0 || info.Size > s.maxBytes {
		return rc, info, nil
	}

	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read invoice artifact: %w", err)
	}
	s.put(ctx, name, data, info.ModifiedAt)
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

// Delete evicts the cached copy and deletes the underlying artifact
func (s *CachedArtifactStore) Delete(ctx context.Context, name string) error {
	s.evict(ctx, name)
	return s.next.Delete(ctx, name)
}

// CleanupOlderThan delegates to the underlying store; cached copies expire by TTL
func (s *CachedArtifactStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	return s.next.CleanupOlderThan(ctx, age)
}

// DownloadURL delegates to the underlying store when it can sign URLs
func (s *CachedArtifactStore) DownloadURL(ctx context.Context, name string, expiresIn time.Duration) (string, time.Time, error) {
	signer, ok := s.next.(invoice.ArtifactURLSigner)
	if !ok {
		return "", time.Time{}, errors.ErrUnsupported
	}
	return signer.DownloadURL(ctx, name, expiresIn)
}

func (s *CachedArtifactStore) key(name string) string {
	return s.keyPrefix + name
}

func (s *CachedArtifactStore) put(ctx context.Context, name string, data []byte, modified time.Time) {
	key := s.key(name)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldData, data, fieldModified, modified.UnixNano())
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		s.logger.Warn("artifact cache write failed", zap.String("name", name), zap.Error(err))
	}
}

func (s *CachedArtifactStore) evict(ctx context.Context, name string) {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		s.logger.Warn("artifact cache evict failed", zap.String("name", name), zap.Error(err))
	}
}

// limitedBuffer collects up to max bytes and then only records the overflow
type limitedBuffer struct {
	buf      bytes.Buffer
	max      int64
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.overflow {
		return len(p), nil
	}
	if int64(b.buf.Len()+len(p)) > b.max {
		b.overflow = true
		b.buf.Reset()
		return len(p), nil
	}
	return b.buf.Write(p)
}

var (
	_ invoice.ArtifactStore     = (*CachedArtifactStore)(nil)
	_ invoice.ArtifactURLSigner = (*CachedArtifactStore)(nil)
)
