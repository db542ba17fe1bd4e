// Package redis stores flows in Redis and provides a Redis-backed run lock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/testflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "testflow:"

// Store implements ports.FlowRepository using Redis.
// A flow is a JSON string key, its run history a list, and all flow IDs are
// indexed in a sorted set scored by expiry.
type Store struct {
	client     *backend.Client
	prefix     string
	ttl        time.Duration
	maxReports int64
}

type Option func(*Store)

// WithTTL sets the expiration for flows and their run history.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithMaxReports keeps only the newest n run reports per flow. Zero keeps all.
func WithMaxReports(n int) Option {
	return func(s *Store) {
		s.maxReports = int64(n)
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(flowID string) string {
	return s.prefix + "flow:" + flowID
}

func (s *Store) runsKey(flowID string) string {
	return s.prefix + "runs:" + flowID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) score() float64 {
	if s.ttl == 0 {
		return 4102444800 // 2100-01-01
	}
	return float64(time.Now().Add(s.ttl).Unix())
}

// CreateFlow stores the whole flow document.
func (s *Store) CreateFlow(ctx context.Context, flow *domain.Flow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(flow.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.score(), Member: flow.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// LoadFlow retrieves a flow.
func (s *Store) LoadFlow(ctx context.Context, flowID string) (*domain.Flow, error) {
	val, err := s.client.Get(ctx, s.key(flowID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var flow domain.Flow
	if err := json.Unmarshal(val, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	return &flow, nil
}

// SaveFlow replaces the structural graph of an existing flow. The write is
// guarded by WATCH so a concurrent metadata update is not lost.
func (s *Store) SaveFlow(ctx context.Context, flowID string, graph domain.FlowGraph) error {
	key := s.key(flowID)
	txf := func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return domain.ErrFlowNotFound
			}
			return err
		}
		var flow domain.Flow
		if err := json.Unmarshal(val, &flow); err != nil {
			return fmt.Errorf("failed to unmarshal flow: %w", err)
		}
		flow.FlowGraph = graph
		data, err := json.Marshal(&flow)
		if err != nil {
			return fmt.Errorf("failed to marshal flow: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.score(), Member: flowID})
			return nil
		})
		return err
	}

	for range 3 {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrFlowNotFound) {
			return fmt.Errorf("failed to save to redis: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to save flow %s: concurrent modification", flowID)
}

// SaveRunReport appends a report to the flow's run list.
func (s *Store) SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.runsKey(flowID), data)
	if s.maxReports > 0 {
		pipe.LTrim(ctx, s.runsKey(flowID), -s.maxReports, -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, s.runsKey(flowID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run report: %w", err)
	}
	return nil
}

// ListRunReports returns the flow's reports, oldest first.
func (s *Store) ListRunReports(ctx context.Context, flowID string) ([]domain.RunReport, error) {
	vals, err := s.client.LRange(ctx, s.runsKey(flowID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list run reports: %w", err)
	}
	reports := make([]domain.RunReport, 0, len(vals))
	for _, v := range vals {
		var r domain.RunReport
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// DeleteFlow removes the flow, its run history and its index entry.
func (s *Store) DeleteFlow(ctx context.Context, flowID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(flowID), s.runsKey(flowID))
	pipe.ZRem(ctx, s.indexKey(), flowID)
	_, err := pipe.Exec(ctx)
	return err
}

// ListFlows returns the indexed flows, pruning expired entries lazily.
func (s *Store) ListFlows(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired flows: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
