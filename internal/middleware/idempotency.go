package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyHeader  = "Idempotency-Key"
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = time.Minute
	maxIdempotentBody  = 1 << 20
)

type entryState string

const (
	stateProcessing entryState = "processing"
	stateComplete   entryState = "complete"
)

// idempotencyEntry is what Redis holds for one key. A processing entry marks
// a request still running; a complete entry carries the response to replay.
type idempotencyEntry struct {
	State       entryState `json:"state"`
	BodyHash    string     `json:"body_hash"`
	StatusCode  int        `json:"status_code,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	Body        []byte     `json:"body,omitempty"`
}

// recordingWriter copies everything written to the client.
type recordingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware makes mutating requests that carry an
// Idempotency-Key safe to retry. The first request claims the key and its
// response is kept for 24 hours; a retry with the same body gets that
// response back, a concurrent retry gets 409 and a retry with another body
// gets 422. Keys are scoped to the route. 5xx answers release the key.
func IdempotencyMiddleware(redisClient *redis.Client, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotentBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		cacheKey := "idempotency:" + c.FullPath() + ":" + key
		hash := bodyHash(body)

		claimed, err := claimKey(ctx, redisClient, cacheKey, hash)
		if err != nil {
			logger.Warn("idempotency claim failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if !claimed {
			existing, err := loadEntry(ctx, redisClient, cacheKey)
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
				}
				// The key expired or was released between the two calls.
				c.Next()
				return
			}
			replay(c, existing, hash)
			return
		}

		w := &recordingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		// Use a fresh context: the request one may already be cancelled.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			if err := redisClient.Del(storeCtx, cacheKey).Err(); err != nil {
				logger.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
			}
			return
		}

		entry := idempotencyEntry{
			State:       stateComplete,
			BodyHash:    hash,
			StatusCode:  status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}
		if err := storeEntry(storeCtx, redisClient, cacheKey, &entry, idempotencyTTL); err != nil {
			logger.Warn("idempotency store failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func replay(c *gin.Context, entry *idempotencyEntry, hash string) {
	switch {
	case entry.BodyHash != hash:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Idempotency-Key was already used with a different request body",
		})
	case entry.State == stateProcessing:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": "A request with this Idempotency-Key is still being processed",
		})
	default:
		contentType := entry.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		c.Header("Idempotent-Replayed", "true")
		c.Data(entry.StatusCode, contentType, entry.Body)
		c.Abort()
	}
}

func claimKey(ctx context.Context, client *redis.Client, key, hash string) (bool, error) {
	data, err := json.Marshal(idempotencyEntry{State: stateProcessing, BodyHash: hash})
	if err != nil {
		return false, err
	}
	return client.SetNX(ctx, key, data, idempotencyLockTTL).Result()
}

func loadEntry(ctx context.Context, client *redis.Client, key string) (*idempotencyEntry, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var entry idempotencyEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func storeEntry(ctx context.Context, client *redis.Client, key string, entry *idempotencyEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, ttl).Err()
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
