// Package infrastructure provides the Redis-backed Audio Session Registry.
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chronicle/server/modules/session/domain"
)

const (
	sessionKeyPrefix       = "session:"
	currentConvKeyPrefix   = "conversation.current:"
	audioFileKeyPrefix     = "audio.file:"
	conversationCountPrefix = "session.conversation_count:"

	terminalTTL = 10 * time.Minute
)

// casTransition atomically flips the status field of a session hash from
// "active" to newStatus, also writing reason. Returns 1 if it applied the
// transition, 0 if the current status was not "active".
var casTransitionScript = redis.NewScript(`
local key = KEYS[1]
local newStatus = ARGV[1]
local reason = ARGV[2]
local current = redis.call("HGET", key, "status")
if current ~= "active" then
  return 0
end
redis.call("HSET", key, "status", newStatus, "completion_reason", reason)
return 1
`)

// RedisRegistry implements domain.Registry on a Redis client, following
// the hash-per-entity + auxiliary-signal-key layout specified in §4.B.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry wraps an existing *redis.Client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

var _ domain.Registry = (*RedisRegistry)(nil)

func sessionKey(id string) string { return sessionKeyPrefix + id }

func (r *RedisRegistry) Create(ctx context.Context, s *domain.Session) error {
	return r.client.HSet(ctx, sessionKey(s.ID), map[string]interface{}{
		"client_id":          s.ClientID,
		"user_id":            s.UserID,
		"status":             string(s.Status),
		"conversation_count": 0,
		"created_at":         s.CreatedAt.Unix(),
	}).Err()
}

func (r *RedisRegistry) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	vals, err := r.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, errSessionNotFound)
	}
	count, _ := strconv.Atoi(vals["conversation_count"])
	createdUnix, _ := strconv.ParseInt(vals["created_at"], 10, 64)
	return &domain.Session{
		ID:                    sessionID,
		ClientID:              vals["client_id"],
		UserID:                vals["user_id"],
		Status:                domain.Status(vals["status"]),
		CompletionReason:      domain.CompletionReason(vals["completion_reason"]),
		CurrentConversationID: vals["current_conversation_id"],
		ConversationCount:     count,
		CreatedAt:             time.Unix(createdUnix, 0),
	}, nil
}

var errSessionNotFound = errors.New("not found")

func (r *RedisRegistry) TransitionToFinalizing(ctx context.Context, sessionID string, reason domain.CompletionReason) (bool, error) {
	res, err := casTransitionScript.Run(ctx, r.client, []string{sessionKey(sessionID)}, "finalizing", string(reason)).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *RedisRegistry) Complete(ctx context.Context, sessionID string, ttlSeconds int64) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(sessionID), "status", string(domain.StatusComplete))
	pipe.Expire(ctx, sessionKey(sessionID), time.Duration(ttlSeconds)*time.Second)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRegistry) SetCurrentConversation(ctx context.Context, sessionID, conversationID string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, currentConvKeyPrefix+sessionID, conversationID, 0)
	pipe.HSet(ctx, sessionKey(sessionID), "current_conversation_id", conversationID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRegistry) ClearCurrentConversation(ctx context.Context, sessionID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, currentConvKeyPrefix+sessionID)
	pipe.HDel(ctx, sessionKey(sessionID), "current_conversation_id")
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRegistry) CurrentConversation(ctx context.Context, sessionID string) (string, bool, error) {
	v, err := r.client.Get(ctx, currentConvKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisRegistry) PublishAudioFile(ctx context.Context, conversationID, path string) error {
	return r.client.Set(ctx, audioFileKeyPrefix+conversationID, path, terminalTTL).Err()
}

func (r *RedisRegistry) AudioFile(ctx context.Context, conversationID string) (string, bool, error) {
	v, err := r.client.Get(ctx, audioFileKeyPrefix+conversationID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisRegistry) IncrementConversationCount(ctx context.Context, sessionID string) (int, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, sessionKey(sessionID), "conversation_count", 1)
	pipe.Set(ctx, conversationCountPrefix+sessionID, 0, terminalTTL) // marker key with a TTL, per §4.B
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}
