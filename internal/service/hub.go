package service

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/user/cinelist/internal/model"
	"github.com/user/cinelist/internal/utils"
	"github.com/user/cinelist/internal/watchlist"
)

// Hub 按列表码共享实时视图；空闲超过 idle 的视图由 go-cache 清理并关闭订阅
type Hub struct {
	store   watchlist.Store
	mu      sync.Mutex
	views   *cache.Cache
	results *utils.TTLCache[[]model.Item]
}

// NewHub 创建视图中心
func NewHub(store watchlist.Store, idle time.Duration) *Hub {
	views := cache.New(idle, idle/2)
	views.OnEvicted(func(key string, v interface{}) {
		v.(*watchlist.View).Close()
		log.Printf("[Hub] 列表 %s 空闲，已关闭订阅", key)
	})
	return &Hub{
		store:   store,
		views:   views,
		results: utils.NewTTLCache[[]model.Item](512, time.Minute),
	}
}

// View 获取（或建立）列表 key 的视图，并刷新空闲计时
func (h *Hub) View(key string) *watchlist.View {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.views.Get(key); ok {
		h.views.SetDefault(key, v)
		return v.(*watchlist.View)
	}
	// 已过期但还未被清理的旧视图先关闭
	h.views.Delete(key)
	v := watchlist.NewView(h.store, key)
	h.views.SetDefault(key, v)
	log.Printf("[Hub] 已订阅列表 %s", key)
	return v
}

// Len 活跃视图数量
func (h *Hub) Len() int {
	return h.views.ItemCount()
}

// Visible 对视图当前快照执行过滤排序。
// 快照不可变，因此结果可以按快照版本缓存。
func (h *Hub) Visible(v *watchlist.View, q watchlist.Query) ([]model.Item, *watchlist.Snapshot) {
	snap := v.Snapshot()
	// 过滤条件来自用户输入，逐项加引号避免拼接后冲突
	cacheKey := fmt.Sprintf("%q|%d|%q|%q|%q|%q|%q",
		snap.Key, snap.Version, q.Tab, q.Type, q.Platform, q.Search, q.Sort)
	if items, ok := h.results.Get(cacheKey); ok {
		return items, snap
	}
	items := watchlist.Visible(snap.Items, q)
	h.results.Set(cacheKey, items)
	return items, snap
}

// Close 关闭所有视图
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views.DeleteExpired()
	for key := range h.views.Items() {
		h.views.Delete(key)
	}
	h.results.Clear()
}
