package watchlist

import (
	"strings"
	"sync"

	"github.com/user/cinelist/internal/model"
)

// DefaultPlatforms 预置平台，始终存在
var DefaultPlatforms = []string{
	"Netflix",
	"Amazon Prime",
	"Apple TV",
	"Disney+",
	"Crunchyroll",
	"Paramount+",
}

var platformColors = map[string]string{
	"Netflix":      "red",
	"Amazon Prime": "blue",
	"Disney+":      "blue",
	"Crunchyroll":  "yellow",
	"Apple TV":     "gray",
	"Paramount+":   "blue",
}

// FallbackColor 未登记颜色的平台使用的颜色
const FallbackColor = "violet"

// ColorFor 平台徽标颜色
func ColorFor(name string) string {
	if c, ok := platformColors[name]; ok {
		return c
	}
	return FallbackColor
}

// Registry 平台登记表：按插入顺序保存、精确匹配去重
type Registry struct {
	mu    sync.RWMutex
	names []string
	seen  map[string]struct{}
}

// NewRegistry 创建带默认平台的登记表
func NewRegistry() *Registry {
	r := &Registry{
		names: make([]string, 0, len(DefaultPlatforms)),
		seen:  make(map[string]struct{}, len(DefaultPlatforms)),
	}
	for _, p := range DefaultPlatforms {
		r.add(p)
	}
	return r
}

// Register 添加平台；空白或已存在时返回 false
func (r *Registry) Register(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(name)
}

// SeedFromItems 登记条目中出现过的所有平台
func (r *Registry) SeedFromItems(items []model.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range items {
		if p := items[i].Platform; p != "" {
			r.add(p)
		}
	}
}

// Contains 是否已登记
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.seen[name]
	return ok
}

// Names 返回副本：默认平台、条目中发现的平台、用户添加的平台
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) add(name string) bool {
	if _, ok := r.seen[name]; ok {
		return false
	}
	r.seen[name] = struct{}{}
	r.names = append(r.names, name)
	return true
}
