package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/google/uuid"
)

const MaxKeyLength = 255

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]+$`)

// ValidateKey checks length and character set before the key is used.
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength || !keyPattern.MatchString(key) {
		return errors.ErrIdempotencyKeyInvalid
	}
	return nil
}

// State of a record.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
)

// Record maps (tenant, client key) to a previously produced response.
type Record struct {
	TenantID       uuid.UUID
	Key            string
	RequestHash    string
	State          State
	ResponseStatus int
	ResponseBody   []byte
	ContentType    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IsExpired reports whether the record is outside its retention window.
func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Fingerprint hashes the parts of a request that must match on replay.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Store is a shared store with an atomic insert-if-absent primitive, so two
// instances never both execute the side effect for one key.
type Store interface {
	// Reserve inserts a pending record if no live record exists. When one does,
	// it is returned with reserved=false.
	Reserve(ctx context.Context, rec *Record) (existing *Record, reserved bool, err error)

	// Complete stores the captured 2xx response on a reserved record
	Complete(ctx context.Context, rec *Record) error

	// Release drops a pending reservation after a non-2xx result
	Release(ctx context.Context, tenantID uuid.UUID, key string) error

	// Purge evicts records that expired before now
	Purge(ctx context.Context, now time.Time) (int64, error)
}
