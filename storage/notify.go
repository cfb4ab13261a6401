package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"

	"chip-todo/domain"
)

// RedisNotifier publishes archive events on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) WeekArchived(ctx context.Context, ev domain.ArchiveEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}

// QueueNotifier enqueues archive events on an Azure Storage queue for
// downstream reporting.
type QueueNotifier struct {
	queue *azqueue.QueueClient
}

func NewQueueNotifier(connStr, queueName string) (*QueueNotifier, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{queue: q}, nil
}

// CreateQueue creates the backing queue, ignoring "already exists".
func (n *QueueNotifier) CreateQueue(ctx context.Context) error {
	_, err := n.queue.Create(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			return nil
		}
		return err
	}
	return nil
}

func (n *QueueNotifier) WeekArchived(ctx context.Context, ev domain.ArchiveEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := n.queue.EnqueueMessage(ctx, string(payload), nil); err != nil {
		return fmt.Errorf("enqueue archive event: %w", err)
	}
	return nil
}

// Notifiers fans an event out to several notifiers and returns the first
// error after trying all of them.
type Notifiers []interface {
	WeekArchived(ctx context.Context, ev domain.ArchiveEvent) error
}

func (ns Notifiers) WeekArchived(ctx context.Context, ev domain.ArchiveEvent) error {
	var first error
	for _, n := range ns {
		if err := n.WeekArchived(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
