package router

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/user/cinelist/internal/handler"
	"github.com/user/cinelist/internal/middleware"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler) {
	if err := handler.RegisterValidators(); err != nil {
		log.Printf("[Router] 注册校验规则失败: %v", err)
	}

	// 健康检查
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.Use(middleware.Identity(h.Config.AppSecret, h.Config.IdentityExpiry))
	api.Use(middleware.RequireIdentity())

	// ==================== 列表码 ====================
	list := api.Group("/list")
	{
		list.GET("", h.CurrentList)
		list.POST("/join", h.JoinList)
		list.POST("/leave", h.LeaveList)
	}

	// ==================== 需要先加入列表 ====================
	joined := api.Group("")
	joined.Use(middleware.RequireList())
	{
		joined.GET("/items", h.ListItems)
		joined.POST("/items", h.AddItem)
		joined.PUT("/items/:id", h.UpdateItem)
		joined.POST("/items/:id/watched", h.MarkWatched)
		joined.DELETE("/items/:id", h.DeleteItem)

		joined.GET("/platforms", h.ListPlatforms)
		joined.POST("/platforms", h.AddPlatform)

		joined.GET("/stream", h.Stream)
	}
}
