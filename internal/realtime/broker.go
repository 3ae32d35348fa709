// Package realtime 负责集合变更通知的分发。
// 通知只携带"集合已变化"这一事实，订阅方收到后自行重新读取完整快照。
package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed 总线已关闭
var ErrClosed = errors.New("broker closed")

// Broker 变更通知总线
type Broker interface {
	// Publish 广播一次集合变更
	Publish(ctx context.Context) error
	// Subscribe 返回通知通道；ctx 取消或调用 cancel 后通道关闭
	Subscribe(ctx context.Context) (<-chan struct{}, func(), error)
	Close() error
}

// LocalBroker 进程内广播，单实例部署或测试使用
type LocalBroker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
	closed bool
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[int]chan struct{})}
}

func (b *LocalBroker) Publish(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		// 通道容量为 1：已有未处理的通知时合并，订阅方总会读取最新快照
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, ErrClosed
	}
	ch := make(chan struct{}, 1)
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
