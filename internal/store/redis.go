package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

const (
	storeTracerName = "github.com/vyrodovalexey/mug/internal/store"
	resourcesKey    = "resources"
	pingTimeout     = 5 * time.Second
)

// RedisStore keeps resources as JSON values in a single Redis hash.
type RedisStore struct {
	client  *redis.Client
	key     string
	logger  observability.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *config.RedisConfig, logger observability.Logger) (*RedisStore, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout.Duration()
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = config.DefaultRedisKeyPrefix
	}

	s := newRedisStore(client, prefix, logger)
	logger.Info("redis resource store initialized",
		observability.String("addr", opts.Addr),
		observability.String("key", s.key),
	)
	return s, nil
}

func newRedisStore(client *redis.Client, prefix string, logger observability.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		key:     prefix + resourcesKey,
		logger:  logger,
		metrics: GetMetrics(),
		tracer:  otel.Tracer(storeTracerName),
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (r Resource, err error) {
	ctx, end := s.start(ctx, "get", attribute.String("store.resource_id", id))
	defer func() { end(err) }()

	raw, err := s.client.HGet(ctx, s.key, id).Result()
	if errors.Is(err, redis.Nil) {
		return Resource{}, ErrNotFound
	}
	if err != nil {
		return Resource{}, fmt.Errorf("redis get %s: %w", id, err)
	}

	return decode(raw)
}

// GetAll implements Store.
func (s *RedisStore) GetAll(ctx context.Context) (_ []Resource, err error) {
	ctx, end := s.start(ctx, "get_all")
	defer func() { end(err) }()

	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get all: %w", err)
	}

	out := make([]Resource, 0, len(values))
	for _, raw := range values {
		r, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Resource) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, r Resource) (err error) {
	ctx, end := s.start(ctx, "put", attribute.String("store.resource_id", r.ID))
	defer func() { end(err) }()

	if err := r.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode resource %s: %w", r.ID, err)
	}

	if err := s.client.HSet(ctx, s.key, r.ID, raw).Err(); err != nil {
		return fmt.Errorf("redis put %s: %w", r.ID, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) (err error) {
	ctx, end := s.start(ctx, "delete", attribute.String("store.resource_id", id))
	defer func() { end(err) }()

	removed, err := s.client.HDel(ctx, s.key, id).Result()
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", id, err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// start opens a client span and returns a func that records the outcome
// on both the span and the store metrics.
func (s *RedisStore) start(
	ctx context.Context, operation string, attrs ...attribute.KeyValue,
) (context.Context, func(error)) {
	attrs = append(attrs,
		attribute.String("db.system", "redis"),
		attribute.String("store.operation", operation),
	)
	ctx, span := s.tracer.Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	start := time.Now()

	return ctx, func(err error) {
		s.metrics.record(backendRedis, operation, err, time.Since(start).Seconds())
		if err != nil && !isNotFound(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.WithContext(ctx).Error("store operation failed",
				observability.String("operation", operation),
				observability.Error(err),
			)
		}
		span.End()
	}
}

func decode(raw string) (Resource, error) {
	var r Resource
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Resource{}, fmt.Errorf("decode resource: %w", err)
	}
	return r, nil
}
