// Package store 将 gorm 仓库与变更通知组合成"实时文档集合"：
// 订阅方每次收到通知都会拿到整个集合的最新快照。
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/user/cinelist/internal/model"
	"github.com/user/cinelist/internal/realtime"
	"github.com/user/cinelist/internal/repository"
	"golang.org/x/sync/singleflight"
)

// Store 共享集合适配器
type Store struct {
	items  *repository.ItemRepository
	broker realtime.Broker
	group  singleflight.Group
	// changes 每收到一次变更（或本实例写入）加一；读取只在同一计数下合并
	changes atomic.Uint64

	fetchTimeout  time.Duration
	fetchAttempts uint
	retryDelay    time.Duration
}

// Option 配置项
type Option func(*Store)

// WithRetryDelay 订阅重建与快照重读的初始间隔
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) { s.retryDelay = d }
}

// WithFetchTimeout 单次读取快照的超时
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) { s.fetchTimeout = d }
}

// New 创建存储适配器
func New(items *repository.ItemRepository, broker realtime.Broker, opts ...Option) *Store {
	s := &Store{
		items:         items,
		broker:        broker,
		fetchTimeout:  10 * time.Second,
		fetchAttempts: 3,
		retryDelay:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe 订阅集合；立即推送一次完整快照，之后每次变更推送一次。
// 返回的函数用于取消订阅，取消后不会再有回调。
func (s *Store) Subscribe(ctx context.Context, onSnapshot func([]model.Item), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	go s.run(ctx, onSnapshot, onError)
	return cancel
}

func (s *Store) run(ctx context.Context, onSnapshot func([]model.Item), onError func(error)) {
	for ctx.Err() == nil {
		var (
			notify      <-chan struct{}
			unsubscribe func()
		)
		// 订阅建立失败时无限重试，直到 ctx 取消
		err := retry.Do(
			func() error {
				var err error
				notify, unsubscribe, err = s.broker.Subscribe(ctx)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(0),
			retry.Delay(s.retryDelay),
			retry.MaxDelay(30*time.Second),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				report(ctx, onError, fmt.Errorf("%w: subscribe: %w", model.ErrStoreUnavailable, err))
			}),
		)
		if err != nil {
			return
		}

		// 每次（重新）订阅后先推送完整快照，弥补断线期间错过的变更
		s.changes.Add(1)
		s.deliver(ctx, onSnapshot, onError)
		for range notify {
			s.changes.Add(1)
			s.deliver(ctx, onSnapshot, onError)
		}
		unsubscribe()

		if ctx.Err() == nil {
			log.Println("[Store] 订阅中断，准备重新订阅")
			select {
			case <-ctx.Done():
			case <-time.After(s.retryDelay):
			}
		}
	}
}

func (s *Store) deliver(ctx context.Context, onSnapshot func([]model.Item), onError func(error)) {
	var items []model.Item
	err := retry.Do(
		func() error {
			var err error
			items, err = s.fetch(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.fetchAttempts),
		retry.Delay(s.retryDelay),
		retry.LastErrorOnly(true),
	)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		report(ctx, onError, fmt.Errorf("%w: fetch snapshot: %w", model.ErrStoreUnavailable, err))
		return
	}
	onSnapshot(items)
}

// fetch 读取整个集合。只有计数相同的并发读取才合并：
// 收到通知后发起的读取不会并入通知之前已开始的查询。
// 返回的切片在订阅方之间共享，只读。
func (s *Store) fetch(ctx context.Context) ([]model.Item, error) {
	key := strconv.FormatUint(s.changes.Load(), 10)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.items.ListAll(fctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Item), nil
}

func report(ctx context.Context, onError func(error), err error) {
	if ctx.Err() != nil {
		return
	}
	log.Printf("[Store] %v", err)
	if onError != nil {
		onError(err)
	}
}

// Create 写入新条目并通知所有订阅方
func (s *Store) Create(ctx context.Context, item *model.Item) error {
	if err := s.items.Create(ctx, item); err != nil {
		return unavailable("create", err)
	}
	s.publish(ctx)
	return nil
}

// Update 按列更新列表 listID 中的条目
func (s *Store) Update(ctx context.Context, listID, id string, fields map[string]interface{}) error {
	if err := s.items.Update(ctx, listID, id, fields); err != nil {
		return unavailable("update", err)
	}
	s.publish(ctx)
	return nil
}

// Delete 删除列表 listID 中的条目
func (s *Store) Delete(ctx context.Context, listID, id string) error {
	if err := s.items.Delete(ctx, listID, id); err != nil {
		return unavailable("delete", err)
	}
	s.publish(ctx)
	return nil
}

// publish 写入已成功，通知失败只记录日志；订阅方下次重连时会读到最新快照
func (s *Store) publish(ctx context.Context) {
	s.changes.Add(1)
	if err := s.broker.Publish(ctx); err != nil {
		log.Printf("[Store] 变更通知发送失败: %v", err)
	}
}

func unavailable(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrStoreUnavailable, op, err)
}
