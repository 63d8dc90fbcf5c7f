package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	mirrorQueueSize   = 1024
	redisOpTimeout    = 2 * time.Second
	activeSessionsKey = "active_sessions"
)

type mirrorOpKind int

const (
	opCreated mirrorOpKind = iota
	opUpdated
	opRemoved
)

type mirrorOp struct {
	kind      mirrorOpKind
	id        string
	pcmLength int
	at        time.Time
}

// RedisMirror publishes registry changes to Redis in the background
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	queue  chan mirrorOp
	logger *zap.Logger
}

// NewRedisMirror connects to Redis and verifies the connection
func NewRedisMirror(ctx context.Context, addr, password string, ttl time.Duration, logger *zap.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisMirror{
		client: client,
		ttl:    ttl,
		queue:  make(chan mirrorOp, mirrorQueueSize),
		logger: logger.Named("redis"),
	}, nil
}

// Created implements Mirror
func (m *RedisMirror) Created(id string, at time.Time) {
	m.enqueue(mirrorOp{kind: opCreated, id: id, at: at})
}

// Updated implements Mirror
func (m *RedisMirror) Updated(id string, pcmLength int, at time.Time) {
	m.enqueue(mirrorOp{kind: opUpdated, id: id, pcmLength: pcmLength, at: at})
}

// Removed implements Mirror
func (m *RedisMirror) Removed(id string) {
	m.enqueue(mirrorOp{kind: opRemoved, id: id})
}

// enqueue adds an operation to the write queue (non-blocking)
func (m *RedisMirror) enqueue(op mirrorOp) {
	select {
	case m.queue <- op:
	default:
		// Queue full, drop: Redis is a best-effort view of the registry
		m.logger.Warn("redis mirror queue full, dropping update", zap.String("session_id", op.id))
	}
}

// Run applies queued operations until ctx is done
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-m.queue:
			if err := m.apply(ctx, op); err != nil {
				m.logger.Warn("redis mirror write failed", zap.String("session_id", op.id), zap.Error(err))
			}
		}
	}
}

func (m *RedisMirror) apply(ctx context.Context, op mirrorOp) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	key := sessionKey(op.id)
	pipe := m.client.TxPipeline()

	switch op.kind {
	case opCreated:
		pipe.HSet(ctx, key, map[string]interface{}{
			"created_at":      op.at.Format(time.RFC3339),
			"last_seen":       op.at.Format(time.RFC3339),
			"last_pcm_length": 0,
			"status":          "active",
		})
		pipe.SAdd(ctx, activeSessionsKey, op.id)
		pipe.Expire(ctx, key, m.ttl)
	case opUpdated:
		pipe.HSet(ctx, key, map[string]interface{}{
			"last_seen":       op.at.Format(time.RFC3339),
			"last_pcm_length": strconv.Itoa(op.pcmLength),
		})
		pipe.Expire(ctx, key, m.ttl)
	case opRemoved:
		pipe.Del(ctx, key)
		pipe.SRem(ctx, activeSessionsKey, op.id)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the Redis client
func (m *RedisMirror) Close() error {
	return m.client.Close()
}

func sessionKey(id string) string {
	return "session:" + id
}
