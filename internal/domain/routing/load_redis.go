package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultLoadKeyPrefix = "intake:load:"
	maxUpdateRetries     = 5
)

// RedisLoadStore shares load snapshots between server instances. Updates
// use optimistic WATCH/MULTI transactions on the facility key.
type RedisLoadStore struct {
	client *redis.Client
	sim    Simulator
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLoadStore creates a store. A ttl of 0 keeps snapshots until they
// are overwritten.
func NewRedisLoadStore(client *redis.Client, sim Simulator, ttl time.Duration) *RedisLoadStore {
	return &RedisLoadStore{
		client: client,
		sim:    sim,
		ttl:    ttl,
		prefix: defaultLoadKeyPrefix,
		now:    time.Now,
	}
}

func (s *RedisLoadStore) key(facilityID string) string {
	return s.prefix + facilityID
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisLoadStore) get(ctx context.Context, c getter, key string) (*FacilityLoad, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var fl FacilityLoad
	if err := json.Unmarshal(raw, &fl); err != nil {
		return nil, fmt.Errorf("decode load snapshot %s: %w", key, err)
	}
	return &fl, nil
}

func (s *RedisLoadStore) Snapshot(ctx context.Context, facilityID string) (*FacilityLoad, error) {
	key := s.key(facilityID)
	fl, err := s.get(ctx, s.client, key)
	if err == nil {
		return fl, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get load snapshot: %w", err)
	}

	// First sighting: publish a simulated snapshot unless another instance
	// got there first, then read back whichever won.
	sim := s.sim.Simulate(facilityID, s.now().UTC())
	data, err := json.Marshal(sim)
	if err != nil {
		return nil, fmt.Errorf("encode load snapshot: %w", err)
	}
	set, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("store load snapshot: %w", err)
	}
	if set {
		return sim, nil
	}
	fl, err = s.get(ctx, s.client, key)
	if err != nil {
		return nil, fmt.Errorf("get load snapshot: %w", err)
	}
	return fl, nil
}

func (s *RedisLoadStore) UpdateLoad(ctx context.Context, facilityID, department string, patients, capacity int) (*DepartmentLoad, error) {
	key := s.key(facilityID)

	var updated DepartmentLoad
	txf := func(tx *redis.Tx) error {
		fl, err := s.get(ctx, tx, key)
		if errors.Is(err, redis.Nil) {
			fl = s.sim.Simulate(facilityID, s.now().UTC())
		} else if err != nil {
			return err
		}

		updated, err = applyUpdate(fl, department, patients, capacity, s.sim.Thresholds, s.now().UTC())
		if err != nil {
			return err
		}
		data, err := json.Marshal(fl)
		if err != nil {
			return fmt.Errorf("encode load snapshot: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return &updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrInvalidLoad) {
			return nil, err
		}
		return nil, fmt.Errorf("update load snapshot: %w", err)
	}
	return nil, fmt.Errorf("update load snapshot %s: too much contention", facilityID)
}
