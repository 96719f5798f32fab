package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releasePendingScript deletes the record only while it is still pending, so
// a late Release never drops a completed response.
var releasePendingScript = redis.NewScript(`
	local v = redis.call("get", KEYS[1])
	if v and cjson.decode(v)["state"] == "pending" then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// IdempotencyStore keeps idempotency records in Redis. Expiry is delegated to
// key TTLs, so Purge has nothing to do.
type IdempotencyStore struct {
	client redis.Cmdable
}

func NewIdempotencyStore(client redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

type storedRecord struct {
	RequestHash    string    `json:"request_hash"`
	State          string    `json:"state"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	ContentType    string    `json:"content_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func idempotencyKey(tenantID uuid.UUID, key string) string {
	return fmt.Sprintf("idem:%s:%s", tenantID, key)
}

func (s *IdempotencyStore) Reserve(ctx context.Context, rec *idempotency.Record) (*idempotency.Record, bool, error) {
	k := idempotencyKey(rec.TenantID, rec.Key)
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil, false, fmt.Errorf("reserve idempotency key: record already expired")
	}

	data, err := json.Marshal(toStored(rec))
	if err != nil {
		return nil, false, fmt.Errorf("marshal idempotency record: %w", err)
	}

	// One retry covers the key expiring between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, k, data, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return nil, true, nil
		}

		raw, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("get idempotency key: %w", err)
		}

		var sr storedRecord
		if err := json.Unmarshal(raw, &sr); err != nil {
			return nil, false, fmt.Errorf("unmarshal idempotency record: %w", err)
		}
		return fromStored(rec.TenantID, rec.Key, sr), false, nil
	}

	return nil, false, fmt.Errorf("reserve idempotency key: contention on %s", k)
}

func (s *IdempotencyStore) Complete(ctx context.Context, rec *idempotency.Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(toStored(rec))
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyKey(rec.TenantID, rec.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, tenantID uuid.UUID, key string) error {
	if err := releasePendingScript.Run(ctx, s.client, []string{idempotencyKey(tenantID, key)}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Purge(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func toStored(rec *idempotency.Record) storedRecord {
	return storedRecord{
		RequestHash:    rec.RequestHash,
		State:          string(rec.State),
		ResponseStatus: rec.ResponseStatus,
		ResponseBody:   rec.ResponseBody,
		ContentType:    rec.ContentType,
		CreatedAt:      rec.CreatedAt,
		ExpiresAt:      rec.ExpiresAt,
	}
}

func fromStored(tenantID uuid.UUID, key string, sr storedRecord) *idempotency.Record {
	return &idempotency.Record{
		TenantID:       tenantID,
		Key:            key,
		RequestHash:    sr.RequestHash,
		State:          idempotency.State(sr.State),
		ResponseStatus: sr.ResponseStatus,
		ResponseBody:   sr.ResponseBody,
		ContentType:    sr.ContentType,
		CreatedAt:      sr.CreatedAt,
		ExpiresAt:      sr.ExpiresAt,
	}
}
