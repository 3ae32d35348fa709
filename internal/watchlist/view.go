package watchlist

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/cinelist/internal/model"
)

// Store 实时共享集合
type Store interface {
	// Subscribe 订阅整个集合，每次变更回调完整快照；返回取消函数
	Subscribe(ctx context.Context, onSnapshot func([]model.Item), onError func(error)) func()
	Create(ctx context.Context, item *model.Item) error
	// Update 与 Delete 只作用于属于 listID 的条目，否则返回 ErrNotFound
	Update(ctx context.Context, listID, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, listID, id string) error
}

// Snapshot 某个列表在某一时刻的完整内容，只读
type Snapshot struct {
	Key     string
	Version uint64 // 0 表示首个快照尚未到达；进程内唯一
	Items   []model.Item
}

// Ready 首个快照是否已到达
func (s *Snapshot) Ready() bool {
	return s.Version > 0
}

// View 单个列表的实时投影。
// 订阅回调是唯一的写入方，每次通知整体替换快照，不做增量合并。
type View struct {
	store Store
	now   func() time.Time

	mu          sync.Mutex
	key         string
	generation  uint64
	unsubscribe func()
	listeners   map[int]func(*Snapshot)
	nextID      int

	snap      atomic.Pointer[Snapshot]
	platforms atomic.Pointer[Registry]
	lastErr   atomic.Pointer[error]
}

// snapshotSeq 快照版本号，进程内全局递增，不同视图之间也不会重复
var snapshotSeq atomic.Uint64

// ViewOption 视图配置
type ViewOption func(*View)

// WithClock 替换时间来源（测试用）
func WithClock(now func() time.Time) ViewOption {
	return func(v *View) { v.now = now }
}

// NewView 为分区键 key 建立订阅
func NewView(store Store, key string, opts ...ViewOption) *View {
	v := &View{
		store:     store,
		now:       time.Now,
		listeners: make(map[int]func(*Snapshot)),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.mu.Lock()
	v.subscribeLocked(key)
	v.mu.Unlock()
	return v
}

// Key 当前分区键
func (v *View) Key() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.key
}

// Snapshot 当前快照，永不为 nil
func (v *View) Snapshot() *Snapshot {
	return v.snap.Load()
}

// Platforms 当前列表的平台登记表
func (v *View) Platforms() *Registry {
	return v.platforms.Load()
}

// Err 最近一次订阅错误；成功收到快照后清空
func (v *View) Err() error {
	if p := v.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Switch 切换到另一个列表：先拆除旧订阅，再建立新订阅。
// 旧订阅迟到的通知会被丢弃。
func (v *View) Switch(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if key == v.key {
		return
	}
	v.teardownLocked()
	v.subscribeLocked(key)
}

// Close 取消订阅
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.teardownLocked()
	v.listeners = make(map[int]func(*Snapshot))
}

// OnChange 注册快照监听，返回取消函数。回调在订阅协程中执行，不应阻塞。
func (v *View) OnChange(fn func(*Snapshot)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

func (v *View) teardownLocked() {
	v.generation++
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
}

func (v *View) subscribeLocked(key string) {
	v.generation++
	gen := v.generation
	v.key = key
	v.snap.Store(&Snapshot{Key: key})
	v.platforms.Store(NewRegistry())
	v.lastErr.Store(nil)

	v.unsubscribe = v.store.Subscribe(context.Background(),
		func(items []model.Item) { v.apply(gen, key, items) },
		func(err error) { v.fail(gen, err) },
	)
}

// apply 用新快照整体替换旧快照
func (v *View) apply(gen uint64, key string, all []model.Item) {
	items := Project(all, key)

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return
	}
	snap := &Snapshot{
		Key:     key,
		Version: snapshotSeq.Add(1),
		Items:   items,
	}
	v.snap.Store(snap)
	v.platforms.Load().SeedFromItems(items)
	v.lastErr.Store(nil)
	listeners := make([]func(*Snapshot), 0, len(v.listeners))
	for _, fn := range v.listeners {
		listeners = append(listeners, fn)
	}
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (v *View) fail(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return
	}
	v.lastErr.Store(&err)
	log.Printf("[View] 列表 %s 同步失败: %v", v.key, err)
}

// Project 从整个集合中取出属于 key 的条目，按 CreatedAt 倒序；
// 尚未获得存储时间的条目排在最后。
func Project(all []model.Item, key string) []model.Item {
	items := make([]model.Item, 0, len(all))
	for i := range all {
		if all[i].ListID == key {
			items = append(items, all[i])
		}
	}
	slices.SortStableFunc(items, func(a, b model.Item) int {
		return -cmp.Compare(createdMillis(a), createdMillis(b))
	})
	return items
}

func createdMillis(item model.Item) int64 {
	if item.CreatedAt == nil {
		return 0
	}
	return item.CreatedAt.UnixMilli()
}

// Add 新增待看条目
func (v *View) Add(ctx context.Context, draft model.ItemDraft) (*model.Item, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrValidation)
	}
	if !draft.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", model.ErrValidation, draft.Type)
	}
	if !v.Platforms().Contains(draft.Platform) {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownPlatform, draft.Platform)
	}

	item := &model.Item{
		ListID:   v.Key(),
		Title:    title,
		Type:     draft.Type,
		Platform: draft.Platform,
		Status:   model.StatusPending,
		AddedAt:  v.now().UTC().Format(time.RFC3339),
	}
	if err := v.store.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Update 编辑标题/类型/平台（merge-patch）；已看过的条目不可编辑
func (v *View) Update(ctx context.Context, id string, patch model.ItemPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return fmt.Errorf("%w: title is required", model.ErrValidation)
		}
		patch.Title = &title
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", model.ErrValidation, *patch.Type)
	}
	if patch.Platform != nil && !v.Platforms().Contains(*patch.Platform) {
		return fmt.Errorf("%w: %q", model.ErrUnknownPlatform, *patch.Platform)
	}
	if item, ok := v.find(id); ok && item.IsWatched() {
		return fmt.Errorf("%w: watched items cannot be edited", model.ErrValidation)
	}

	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}
	return v.store.Update(ctx, v.Key(), id, fields)
}

// MarkWatched 标记为已看过并写入评分、观看日期与短评。
// 不检查之前的状态，重复调用直接覆盖。
func (v *View) MarkWatched(ctx context.Context, id string, rating float64, date, review string) error {
	if err := ValidateRating(rating); err != nil {
		return err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return fmt.Errorf("%w: watched date is required", model.ErrValidation)
	}

	var reviewVal *string
	if r := strings.TrimSpace(review); r != "" {
		reviewVal = &r
	}
	return v.store.Update(ctx, v.Key(), id, map[string]interface{}{
		"status":     model.StatusWatched,
		"rating":     rating,
		"watched_at": date,
		"review":     reviewVal,
	})
}

// Remove 硬删除，对列表所有成员可见
func (v *View) Remove(ctx context.Context, id string) error {
	return v.store.Delete(ctx, v.Key(), id)
}

func (v *View) find(id string) (model.Item, bool) {
	for _, item := range v.Snapshot().Items {
		if item.ID == id {
			return item, true
		}
	}
	return model.Item{}, false
}

// ValidateRating 评分范围 [0, 10]，步长 0.5
func ValidateRating(rating float64) error {
	if rating < 0 || rating > 10 {
		return fmt.Errorf("%w: rating %v out of range", model.ErrValidation, rating)
	}
	if rating*2 != float64(int(rating*2)) {
		return fmt.Errorf("%w: rating %v must be a multiple of 0.5", model.ErrValidation, rating)
	}
	return nil
}
