package watchlist

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/user/cinelist/internal/model"
)

// Tab 片单视图
type Tab string

const (
	TabWatchlist Tab = "watchlist" // 待看
	TabHistory   Tab = "history"   // 已看
)

// FilterAll 类型/平台过滤器的"全部"取值
const FilterAll = "all"

// 已看列表的排序方式
const (
	SortByDate   = "date"
	SortByRating = "rating"
)

// Query 过滤与排序条件
type Query struct {
	Tab      Tab
	Type     string
	Platform string
	Search   string
	Sort     string
}

// DefaultQuery 待看列表、不过滤、按观看日期排序
func DefaultQuery() Query {
	return Query{
		Tab:      TabWatchlist,
		Type:     FilterAll,
		Platform: FilterAll,
		Sort:     SortByDate,
	}
}

// Visible 计算当前可见的条目。纯函数：不修改 items，结果为新切片。
func Visible(items []model.Item, q Query) []model.Item {
	search := strings.ToLower(q.Search)

	out := make([]model.Item, 0, len(items))
	for _, item := range items {
		if !matchTab(item, q.Tab) {
			continue
		}
		if q.Type != FilterAll && string(item.Type) != q.Type {
			continue
		}
		if q.Platform != FilterAll && item.Platform != q.Platform {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.Title), search) {
			continue
		}
		out = append(out, item)
	}

	if q.Tab == TabHistory {
		switch q.Sort {
		case SortByRating:
			slices.SortStableFunc(out, func(a, b model.Item) int {
				return compareDesc(a.RatingOrZero(), b.RatingOrZero())
			})
		case SortByDate:
			slices.SortStableFunc(out, compareWatchedAtDesc)
		}
	}
	return out
}

func matchTab(item model.Item, tab Tab) bool {
	switch tab {
	case TabWatchlist:
		return item.Status == model.StatusPending
	case TabHistory:
		return item.Status == model.StatusWatched
	default:
		return false
	}
}

func compareDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

// compareWatchedAtDesc 按观看日期倒序；无法解析的日期排在最后，彼此保持原顺序
func compareWatchedAtDesc(a, b model.Item) int {
	ta, tb := watchedTime(a), watchedTime(b)
	aBad, bBad := math.IsNaN(ta), math.IsNaN(tb)
	switch {
	case aBad && bBad:
		return 0
	case aBad:
		return 1
	case bBad:
		return -1
	}
	return compareDesc(ta, tb)
}

var watchedLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// watchedTime 解析观看日期为 Unix 毫秒，失败时返回 NaN
func watchedTime(item model.Item) float64 {
	if item.WatchedAt == nil {
		return math.NaN()
	}
	ts, ok := ParseDate(*item.WatchedAt)
	if !ok {
		return math.NaN()
	}
	return float64(ts.UnixMilli())
}

// ParseDate 解析观看日期；支持纯日期与 RFC 3339
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range watchedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Summary 可见列表的统计信息
type Summary struct {
	Count         int      `json:"count"`
	AverageRating *float64 `json:"average_rating,omitempty"`
}

// Summarize 统计可见条目数；已看列表额外给出平均分（未评分按 0，保留一位小数）
func Summarize(visible []model.Item, tab Tab) Summary {
	s := Summary{Count: len(visible)}
	if tab != TabHistory || len(visible) == 0 {
		return s
	}
	var sum float64
	for i := range visible {
		sum += visible[i].RatingOrZero()
	}
	avg := math.Round(sum/float64(len(visible))*10) / 10
	s.AverageRating = &avg
	return s
}
