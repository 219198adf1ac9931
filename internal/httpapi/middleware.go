package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/cache"
	"github.com/safar/peptide-shop/internal/telemetry"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"
	maxIdempotencyKey = 255
)

// requestLogger logs one line per request once the response is written.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			log := telemetry.WithTrace(r.Context(), logger)
			if status >= http.StatusInternalServerError {
				log.Warn("request", fields...)
				return
			}
			log.Info("request", fields...)
		})
	}
}

// recoverer turns a handler panic into a 500 response and an error log with the stack.
func recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				telemetry.WithTrace(r.Context(), logger).Error("panic recovered",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Any("panic", rvr),
					zap.Stack("stack"),
				)
				writeError(w, r, logger, apperr.Transient("panic", fmt.Errorf("%v", rvr)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// captureWriter tees the response so it can be stored for replay.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// idempotent replays the first response for a repeated Idempotency-Key. Keys are scoped
// to the caller, and the stored record is bound to a hash of the request body. Server
// errors and panics release the key so the client may retry. When the cache is unavailable the
// request is served normally.
func idempotent(store cache.Idempotency, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if store == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				writeError(w, r, logger, apperr.Validation("idempotency key must be at most %d characters", maxIdempotencyKey))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, r, logger, apperr.Validation("request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := scopeKey(r, key)
			hash := requestHash(r, body)
			log := telemetry.WithTrace(r.Context(), logger)

			cached, err := store.Begin(r.Context(), scoped, hash)
			switch {
			case errors.Is(err, cache.ErrKeyReused):
				writeError(w, r, logger, apperr.Conflict("idempotency key already used with a different request"))
				return
			case errors.Is(err, cache.ErrInProgress):
				writeError(w, r, logger, apperr.Conflict("a request with this idempotency key is still in progress"))
				return
			case err != nil:
				log.Warn("idempotency cache unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			case cached != nil:
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set(replayHeader, "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			ctx := context.WithoutCancel(r.Context())
			defer func() {
				if rec := recover(); rec != nil {
					if err := store.Abort(ctx, scoped); err != nil {
						log.Warn("release idempotency key", zap.Error(err))
					}
					panic(rec)
				}
			}()

			cw := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(cw, r)

			if cw.status == 0 || cw.status >= http.StatusInternalServerError {
				if err := store.Abort(ctx, scoped); err != nil {
					log.Warn("release idempotency key", zap.Error(err))
				}
				return
			}
			resp := cache.Response{
				Status:      cw.status,
				ContentType: cw.Header().Get("Content-Type"),
				Body:        cw.body.Bytes(),
			}
			if err := store.Complete(ctx, scoped, hash, resp); err != nil {
				log.Warn("store idempotent response", zap.Error(err))
			}
		})
	}
}

func scopeKey(r *http.Request, key string) string {
	if requester := RequesterFrom(r.Context()); requester != nil {
		return requester.ID.String() + ":" + key
	}
	return "guest:" + key
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
