package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker 基于 Redis Pub/Sub 的跨实例通知
// go-redis 的 PubSub 在断线后会自动重连并重新订阅
type RedisBroker struct {
	client  *redis.Client
	channel string
}

// NewRedisBroker 解析 redisURL 并测试连接
func NewRedisBroker(redisURL, channel string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBrokerWithClient(client, channel), nil
}

// NewRedisBrokerWithClient 复用已有客户端
func NewRedisBrokerWithClient(client *redis.Client, channel string) *RedisBroker {
	return &RedisBroker{client: client, channel: channel}
}

func (b *RedisBroker) Publish(ctx context.Context) error {
	if err := b.client.Publish(ctx, b.channel, "changed").Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	ps := b.client.Subscribe(ctx, b.channel)
	// 等待订阅确认，确保之后的 Publish 不会丢失
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	msgs := ps.Channel()
	out := make(chan struct{}, 1)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil {
				log.Printf("[RedisBroker] 关闭订阅失败: %v", err)
			}
		})
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, cancel, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
