package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/user/cinelist/internal/model"
	"github.com/user/cinelist/internal/utils"
	"github.com/user/cinelist/internal/watchlist"
)

// itemsQuery 列表页的过滤条件
type itemsQuery struct {
	Tab      string `form:"tab" binding:"omitempty,oneof=watchlist history"`
	Type     string `form:"type" binding:"omitempty,oneof=all series movie"`
	Platform string `form:"platform"`
	Search   string `form:"q"`
	Sort     string `form:"sort"`
}

func (q itemsQuery) toQuery() watchlist.Query {
	out := watchlist.DefaultQuery()
	if q.Tab != "" {
		out.Tab = watchlist.Tab(q.Tab)
	}
	if q.Type != "" {
		out.Type = q.Type
	}
	if q.Platform != "" {
		out.Platform = q.Platform
	}
	if q.Sort != "" {
		out.Sort = q.Sort
	}
	out.Search = q.Search
	return out
}

// itemsPayload 列表页数据
type itemsPayload struct {
	Items   []model.Item      `json:"items"`
	Summary watchlist.Summary `json:"summary"`
	Ready   bool              `json:"ready"`
	Version uint64            `json:"version"`
}

func (h *Handler) payload(v *watchlist.View, q watchlist.Query) itemsPayload {
	items, snap := h.Hub.Visible(v, q)
	return itemsPayload{
		Items:   items,
		Summary: watchlist.Summarize(items, q.Tab),
		Ready:   snap.Ready(),
		Version: snap.Version,
	}
}

// ListItems 当前列表的可见条目
func (h *Handler) ListItems(c *gin.Context) {
	var req itemsQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.BadRequest(c, "过滤条件无效")
		return
	}
	v := h.view(c)
	// 首个快照尚未到达且订阅已报错：存储不可用
	if !v.Snapshot().Ready() {
		if err := v.Err(); err != nil {
			fail(c, err)
			return
		}
	}
	utils.Success(c, h.payload(v, req.toQuery()))
}

// AddItem 新增待看条目
func (h *Handler) AddItem(c *gin.Context) {
	var draft model.ItemDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		fail(c, fmt.Errorf("%w: %v", model.ErrValidation, err))
		return
	}
	item, err := h.view(c).Add(c.Request.Context(), draft)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Created(c, item)
}

// UpdateItem 编辑标题/类型/平台
func (h *Handler) UpdateItem(c *gin.Context) {
	var patch model.ItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, fmt.Errorf("%w: %v", model.ErrValidation, err))
		return
	}
	if err := h.view(c).Update(c.Request.Context(), c.Param("id"), patch); err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, gin.H{"id": c.Param("id")})
}

// MarkWatched 标记已看过并评分
func (h *Handler) MarkWatched(c *gin.Context) {
	var req model.WatchedInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", model.ErrValidation, err))
		return
	}
	err := h.view(c).MarkWatched(c.Request.Context(), c.Param("id"), req.Rating, req.Date, req.Review)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, gin.H{"id": c.Param("id"), "status": model.StatusWatched})
}

// DeleteItem 删除条目（对列表所有成员生效）
func (h *Handler) DeleteItem(c *gin.Context) {
	if err := h.view(c).Remove(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, nil)
}
