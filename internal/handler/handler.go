package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/user/cinelist/internal/config"
	"github.com/user/cinelist/internal/middleware"
	"github.com/user/cinelist/internal/model"
	"github.com/user/cinelist/internal/service"
	"github.com/user/cinelist/internal/utils"
	"github.com/user/cinelist/internal/watchlist"
)

// Handler HTTP 处理器
type Handler struct {
	Hub    *service.Hub
	Config *config.Config
}

// NewHandler 创建处理器
func NewHandler(hub *service.Hub, cfg *config.Config) *Handler {
	return &Handler{
		Hub:    hub,
		Config: cfg,
	}
}

// RegisterValidators 注册自定义校验规则
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	return v.RegisterValidation("halfstep", func(fl validator.FieldLevel) bool {
		return watchlist.ValidateRating(fl.Field().Float()) == nil
	})
}

// view 当前请求所属列表的视图
func (h *Handler) view(c *gin.Context) *watchlist.View {
	return h.Hub.View(middleware.GetListCode(c))
}

// fail 将领域错误映射为 HTTP 响应
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, model.ErrInvalidCode):
		utils.BadRequest(c, "列表码至少需要 3 个字符")
	case errors.Is(err, model.ErrValidation):
		utils.BadRequest(c, err.Error())
	case errors.Is(err, model.ErrUnknownPlatform):
		utils.BadRequest(c, "平台未登记，请先添加平台")
	case errors.Is(err, model.ErrNotFound):
		utils.NotFound(c, "条目不存在")
	case errors.Is(err, model.ErrNoList):
		utils.Conflict(c, "请先加入一个列表")
	case errors.Is(err, model.ErrStoreUnavailable):
		log.Printf("[Handler] 存储不可用: %v", err)
		utils.ServiceUnavailable(c, "")
	default:
		log.Printf("[Handler] 未知错误: %v", err)
		utils.InternalServerError(c, "")
	}
}

// CurrentList 当前加入的列表
func (h *Handler) CurrentList(c *gin.Context) {
	code := middleware.ListCode(c)
	if code == "" {
		fail(c, model.ErrNoList)
		return
	}
	utils.Success(c, gin.H{"code": code})
}

type joinRequest struct {
	Code string `json:"code" form:"code"`
}

// JoinList 加入（或创建）列表
func (h *Handler) JoinList(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "请求格式错误")
		return
	}
	code, err := watchlist.ResolveCode(req.Code)
	if err != nil {
		fail(c, err)
		return
	}
	if err := middleware.SaveListCode(c, code); err != nil {
		utils.InternalServerError(c, "保存列表码失败")
		return
	}
	// 提前建立订阅，进入列表后首屏更快
	h.Hub.View(code)
	utils.Success(c, gin.H{"code": code})
}

// LeaveList 退出列表，需重新输入列表码才能再次查看
func (h *Handler) LeaveList(c *gin.Context) {
	if err := middleware.ClearListCode(c); err != nil {
		utils.InternalServerError(c, "退出列表失败")
		return
	}
	utils.Success(c, nil)
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "views": h.Hub.Len()})
}
