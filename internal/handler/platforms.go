package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/user/cinelist/internal/utils"
	"github.com/user/cinelist/internal/watchlist"
)

type platformView struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func platformViews(names []string) []platformView {
	out := make([]platformView, 0, len(names))
	for _, name := range names {
		out = append(out, platformView{Name: name, Color: watchlist.ColorFor(name)})
	}
	return out
}

// ListPlatforms 当前列表可选的平台
func (h *Handler) ListPlatforms(c *gin.Context) {
	utils.Success(c, platformViews(h.view(c).Platforms().Names()))
}

type platformRequest struct {
	Name string `json:"name" binding:"required"`
}

// AddPlatform 添加自定义平台（重复添加无副作用）
func (h *Handler) AddPlatform(c *gin.Context) {
	var req platformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "平台名称不能为空")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		utils.BadRequest(c, "平台名称不能为空")
		return
	}
	registry := h.view(c).Platforms()
	added := registry.Register(name)
	utils.Success(c, gin.H{
		"added":     added,
		"platforms": platformViews(registry.Names()),
	})
}
