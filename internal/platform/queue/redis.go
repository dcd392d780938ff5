package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dontdude/coderoom/internal/domain"
	"github.com/redis/go-redis/v9"
)

// readBlock bounds each XREADGROUP call so cancellation is noticed.
const readBlock = 2 * time.Second

// RedisQueue implements domain.JobQueue using Redis Streams for jobs and
// Pub/Sub for results.
type RedisQueue struct {
	client   *redis.Client
	stream   string
	group    string
	channel  string
	consumer string
}

var _ domain.JobQueue = (*RedisQueue)(nil)

// NewRedisQueue connects to addr and verifies the connection with a ping.
func NewRedisQueue(addr, stream, group, channel string) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisQueue{
		client:   rdb,
		stream:   stream,
		group:    group,
		channel:  channel,
		consumer: consumerName(),
	}, nil
}

// consumerName identifies this process within the consumer group.
func consumerName() string {
	host, _ := os.Hostname()
	if host == "" {
		return fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func (r *RedisQueue) Close() error {
	return r.client.Close()
}

// Publish appends a job to the stream with XADD.
func (r *RedisQueue) Publish(ctx context.Context, job domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"job": data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// ensureGroup creates the consumer group, and the stream with it. Entries added
// before the group existed are delivered too.
func (r *RedisQueue) ensureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Subscribe streams new entries for this consumer with XREADGROUP. The channel
// is closed when ctx ends.
func (r *RedisQueue) Subscribe(ctx context.Context) (<-chan domain.Job, error) {
	if err := r.ensureGroup(ctx); err != nil {
		return nil, err
	}

	outCh := make(chan domain.Job)

	go func() {
		defer close(outCh)

		for ctx.Err() == nil {
			streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    r.group,
				Consumer: r.consumer,
				Streams:  []string{r.stream, ">"},
				Count:    1,
				Block:    readBlock,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				slog.Error("Redis read error", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					job, ok := r.decode(ctx, msg)
					if !ok {
						continue
					}
					select {
					case outCh <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return outCh, nil
}

// decode turns a stream entry into a Job. Undecodable entries are acknowledged
// so they do not sit in the pending list forever.
func (r *RedisQueue) decode(ctx context.Context, msg redis.XMessage) (domain.Job, bool) {
	var job domain.Job
	val, ok := msg.Values["job"].(string)
	if !ok {
		slog.Error("Invalid message format", "msgID", msg.ID)
		r.client.XAck(ctx, r.stream, r.group, msg.ID)
		return job, false
	}
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		slog.Error("Failed to unmarshal job", "msgID", msg.ID, "error", err)
		r.client.XAck(ctx, r.stream, r.group, msg.ID)
		return job, false
	}
	job.RawID = msg.ID
	return job, true
}

// Acknowledge removes an entry from the group's pending list with XACK.
func (r *RedisQueue) Acknowledge(ctx context.Context, rawID string) error {
	if err := r.client.XAck(ctx, r.stream, r.group, rawID).Err(); err != nil {
		return fmt.Errorf("redis ack failed: %w", err)
	}
	return nil
}

// Broadcast publishes a result on the results channel.
func (r *RedisQueue) Broadcast(ctx context.Context, result domain.JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis broadcast failed: %w", err)
	}
	return nil
}

// SubscribeResults streams every result published on the results channel. The
// subscription is confirmed before it returns.
func (r *RedisQueue) SubscribeResults(ctx context.Context) (<-chan domain.JobResult, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to results: %w", err)
	}

	outCh := make(chan domain.JobResult)

	go func() {
		defer close(outCh)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var result domain.JobResult
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					slog.Error("Failed to unmarshal result", "error", err)
					continue
				}

				select {
				case outCh <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return outCh, nil
}
