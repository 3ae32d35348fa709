package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/user/cinelist/internal/model"
	"gorm.io/gorm"
)

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create 写入新条目，ID 与 CreatedAt 由存储层分配
func (r *ItemRepository) Create(ctx context.Context, item *model.Item) error {
	item.ID = uuid.NewString()
	now := time.Now().UTC()
	item.CreatedAt = &now
	return r.db.WithContext(ctx).Create(item).Error
}

// Update 按列更新（merge-patch）；条目不存在或不属于 listID 时返回 ErrNotFound
func (r *ItemRepository) Update(ctx context.Context, listID, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Item{}).
		Where("id = ? AND list_id = ?", id, listID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Delete 硬删除，只删除属于 listID 的条目
func (r *ItemRepository) Delete(ctx context.Context, listID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND list_id = ?", id, listID).Delete(&model.Item{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListAll 读取整个集合（分区过滤在视图中完成）
func (r *ItemRepository) ListAll(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	err := r.db.WithContext(ctx).Find(&items).Error
	return items, err
}
