package model

import (
	"time"
)

// CollectionName 共享集合名称（所有列表共用一张表，按 ListID 区分）
const CollectionName = "cinelist_cloud_items"

// ItemType 条目类型
type ItemType string

const (
	TypeSeries ItemType = "series"
	TypeMovie  ItemType = "movie"
)

// Valid 是否为已知类型
func (t ItemType) Valid() bool {
	return t == TypeSeries || t == TypeMovie
}

// ItemStatus 观看状态
type ItemStatus string

const (
	StatusPending ItemStatus = "pending"
	StatusWatched ItemStatus = "watched"
)

// Item 共享片单中的一部电影或剧集
type Item struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	ListID    string     `json:"list_id" gorm:"index;not null"`
	Title     string     `json:"title" gorm:"not null"`
	Type      ItemType   `json:"type" gorm:"size:16"`
	Platform  string     `json:"platform"`
	Status    ItemStatus `json:"status" gorm:"size:16;index"`
	AddedAt   string     `json:"added_at"`                              // 客户端记录的添加时间 (RFC 3339)
	CreatedAt *time.Time `json:"created_at" gorm:"autoCreateTime:false"` // 存储层写入时间，仅用于排序
	WatchedAt *string    `json:"watched_at"`
	Rating    *float64   `json:"rating"`
	Review    *string    `json:"review"`
}

// TableName 固定集合路径
func (Item) TableName() string {
	return CollectionName
}

// IsWatched 是否已看过
func (i *Item) IsWatched() bool {
	return i.Status == StatusWatched
}

// RatingOrZero 评分，未评分按 0 处理
func (i *Item) RatingOrZero() float64 {
	if i.Rating == nil {
		return 0
	}
	return *i.Rating
}

// ItemDraft 新增条目表单
type ItemDraft struct {
	Title    string   `json:"title" binding:"required"`
	Type     ItemType `json:"type" binding:"required,oneof=series movie"`
	Platform string   `json:"platform" binding:"required"`
}

// ItemPatch 编辑条目（merge-patch，nil 字段保持不变）
type ItemPatch struct {
	Title    *string   `json:"title"`
	Type     *ItemType `json:"type" binding:"omitempty,oneof=series movie"`
	Platform *string   `json:"platform"`
}

// Fields 转换为待更新的列
func (p ItemPatch) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, 3)
	if p.Title != nil {
		fields["title"] = *p.Title
	}
	if p.Type != nil {
		fields["type"] = *p.Type
	}
	if p.Platform != nil {
		fields["platform"] = *p.Platform
	}
	return fields
}

// WatchedInput 标记已看过的评分表单
type WatchedInput struct {
	Rating float64 `json:"rating" binding:"min=0,max=10,halfstep"`
	Date   string  `json:"date" binding:"required"`
	Review string  `json:"review"`
}
