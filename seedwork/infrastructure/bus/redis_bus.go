package bus

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on top of Redis Streams (XADD/XREADGROUP/XRANGE/
// XACK/XLEN/XAUTOCLAIM), following the operation set specified in §4.A.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus wraps an existing *redis.Client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Append(ctx context.Context, stream string, payload map[string]string) (string, error) {
	values := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		values[k] = v
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", err
	}
	return id, nil
}

func (b *RedisBus) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists — not an error for us.
		if isBusyGroup(err) {
			return nil
		}
		return err
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (b *RedisBus) Read(ctx context.Context, stream, group, consumer string, maxBatch int64, block time.Duration) ([]Entry, error) {
	if group == "" {
		// Whole-stream read from the beginning, used by the aggregator.
		res, err := b.client.XRange(ctx, stream, "-", "+").Result()
		if err != nil {
			return nil, err
		}
		return toEntries(res), nil
	}

	if err := b.EnsureGroup(ctx, stream, group); err != nil {
		return nil, err
	}

	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    maxBatch,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return toEntries(streams[0].Messages), nil
}

func (b *RedisBus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.client.XAck(ctx, stream, group, ids...).Err()
}

func (b *RedisBus) Len(ctx context.Context, stream string) (int64, error) {
	return b.client.XLen(ctx, stream).Result()
}

func (b *RedisBus) Delete(ctx context.Context, stream string) error {
	return b.client.Del(ctx, stream).Err()
}

func (b *RedisBus) ClaimIdle(ctx context.Context, stream, group, consumer string, idle time.Duration) ([]Entry, error) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  idle,
		Start:    "0",
		Count:    100,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	entries := toEntries(msgs)
	// Ack immediately: entries past the fatal idle threshold are reaped,
	// not redelivered, per §4.A's maintenance-routine semantics.
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := b.Ack(ctx, stream, group, ids...); err != nil {
		return entries, err
	}
	return entries, nil
}

func toEntries(msgs []redis.XMessage) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		payload := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			switch vv := v.(type) {
			case string:
				payload[k] = vv
			case int64:
				payload[k] = strconv.FormatInt(vv, 10)
			default:
				payload[k] = ""
			}
		}
		out = append(out, Entry{ID: m.ID, Payload: payload})
	}
	return out
}
