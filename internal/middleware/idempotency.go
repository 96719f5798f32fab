package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/rs/zerolog/log"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotencyReplayedHeader = "X-Idempotency-Replayed"

	maxIdempotencyBodySize = 1 << 20
)

// Idempotency replays the stored response for a repeated (tenant, key) pair.
// A key is reserved in the shared store before the handler runs, so two
// instances never both execute the side effect. Only 2xx responses are kept;
// anything else releases the key and the client may retry with it.
// Must run after RequireAuth.
func Idempotency(store idempotency.Store, ttl time.Duration, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				metrics.Idempotency("invalid")
				writeJSONError(w, http.StatusBadRequest, "invalid idempotency key", "idempotency_key_invalid")
				return
			}

			principal, ok := GetPrincipal(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "authentication required", "auth_required")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBodySize+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "could not read request body", "invalid_request")
				return
			}
			if len(body) > maxIdempotencyBodySize {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", "body_too_large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			now := time.Now()
			rec := &idempotency.Record{
				TenantID:    principal.TenantID,
				Key:         key,
				RequestHash: idempotency.Fingerprint(r.Method, r.URL.Path, body),
				State:       idempotency.StatePending,
				CreatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}

			existing, reserved, err := store.Reserve(r.Context(), rec)
			if err != nil {
				log.Error().Err(err).Str("tenant_id", principal.TenantID.String()).Msg("idempotency reserve failed")
				writeJSONError(w, http.StatusInternalServerError, "internal server error", "internal_error")
				return
			}
			if !reserved {
				replay(w, existing, rec.RequestHash, metrics)
				return
			}

			// Until the response is stored the key must be released, including
			// when the handler panics and Recoverer answers further out.
			stored := false
			defer func() {
				if stored {
					return
				}
				// The client may already be gone; the key must still be freed.
				ctx := context.WithoutCancel(r.Context())
				if err := store.Release(ctx, principal.TenantID, key); err != nil {
					log.Error().Err(err).Str("tenant_id", principal.TenantID.String()).Msg("idempotency release failed")
				}
			}()

			recorder := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode < 200 || recorder.statusCode >= 300 || recorder.bodyTruncated {
				return
			}

			rec.State = idempotency.StateCompleted
			rec.ResponseStatus = recorder.statusCode
			rec.ResponseBody = recorder.body.Bytes()
			rec.ContentType = recorder.Header().Get("Content-Type")
			if err := store.Complete(context.WithoutCancel(r.Context()), rec); err != nil {
				log.Error().Err(err).Str("tenant_id", principal.TenantID.String()).Msg("idempotency complete failed")
				return
			}
			stored = true
			metrics.Idempotency("stored")
		})
	}
}

func replay(w http.ResponseWriter, existing *idempotency.Record, requestHash string, metrics *observability.Metrics) {
	switch {
	case existing.RequestHash != requestHash:
		metrics.Idempotency("mismatch")
		writeJSONError(w, http.StatusUnprocessableEntity, "idempotency key reused with a different request", "idempotency_key_mismatch")
	case existing.State != idempotency.StateCompleted:
		metrics.Idempotency("in_flight")
		writeJSONError(w, http.StatusConflict, "a request with this idempotency key is in progress", "idempotency_key_in_flight")
	default:
		metrics.Idempotency("replayed")
		if existing.ContentType != "" {
			w.Header().Set("Content-Type", existing.ContentType)
		}
		w.Header().Set(IdempotencyReplayedHeader, "true")
		w.WriteHeader(existing.ResponseStatus)
		w.Write(existing.ResponseBody)
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	wroteHeader   bool
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
