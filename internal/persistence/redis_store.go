package persistence

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/modelingevolution/numeric/internal/analytics"
	"github.com/modelingevolution/numeric/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	latestSampleKey   = "metrics:latest"
	recentSamplesKey  = "metrics:recent"
	latestSnapshotKey = "analytics:latest"

	recentSamplesLimit = 1000
	entryTTL           = time.Hour
)

// MetricStore publishes raw samples and smoothed snapshots to Redis for
// dashboards. Nothing is ever read back into the windows.
type MetricStore struct {
	client *redis.Client
}

func NewMetricStore(addr, password string, db int) *MetricStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &MetricStore{client: client}
}

func (s *MetricStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *MetricStore) Stop() error {
	return s.client.Close()
}

// Save records m as the latest sample, globally and for its device, and
// prepends it to the bounded list of recent samples.
func (s *MetricStore) Save(ctx context.Context, m model.Sample) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal sample")
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, latestSampleKey, payload, entryTTL)
	pipe.LPush(ctx, recentSamplesKey, payload)
	pipe.LTrim(ctx, recentSamplesKey, 0, recentSamplesLimit-1)
	if m.DeviceID != "" {
		pipe.Set(ctx, latestSampleKey+":"+m.DeviceID, payload, entryTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis exec")
	}
	return nil
}

// Publish stores snap as the latest smoothed snapshot.
func (s *MetricStore) Publish(ctx context.Context, snap analytics.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	if err := s.client.Set(ctx, latestSnapshotKey, payload, entryTTL).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// FetchLatest returns the latest sample, for deviceID when it is not empty.
// It returns nil without error when nothing is stored.
func (s *MetricStore) FetchLatest(ctx context.Context, deviceID string) (*model.Sample, error) {
	key := latestSampleKey
	if deviceID != "" {
		key = latestSampleKey + ":" + deviceID
	}

	var m model.Sample
	if ok, err := s.fetch(ctx, key, &m); !ok {
		return nil, err
	}
	return &m, nil
}

// FetchSnapshot returns the latest published snapshot, or nil when none is stored.
func (s *MetricStore) FetchSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	var snap analytics.Snapshot
	if ok, err := s.fetch(ctx, latestSnapshotKey, &snap); !ok {
		return nil, err
	}
	return &snap, nil
}

// Recent returns up to limit of the most recent samples, newest first.
func (s *MetricStore) Recent(ctx context.Context, limit int) ([]model.Sample, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := s.client.LRange(ctx, recentSamplesKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis lrange")
	}

	samples := make([]model.Sample, 0, len(items))
	for _, item := range items {
		var m model.Sample
		if err := json.UnmarshalFromString(item, &m); err != nil {
			return nil, errors.Wrap(err, "unmarshal sample")
		}
		samples = append(samples, m)
	}
	return samples, nil
}

func (s *MetricStore) fetch(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Wrap(err, "redis get")
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "unmarshal %s", key)
	}
	return true, nil
}
