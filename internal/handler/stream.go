package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/user/cinelist/internal/middleware"
	"github.com/user/cinelist/internal/utils"
	"github.com/user/cinelist/internal/watchlist"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamMessage WebSocket 推送消息
type streamMessage struct {
	Type string       `json:"type"`
	Data itemsPayload `json:"data"`
}

// Stream 通过 WebSocket 推送当前列表的可见条目，每次快照变化推送一次
func (h *Handler) Stream(c *gin.Context) {
	var req itemsQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.BadRequest(c, "过滤条件无效")
		return
	}
	q := req.toQuery()
	code := middleware.GetListCode(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] 升级 WebSocket 失败: %v", err)
		return
	}
	defer conn.Close()

	v := h.Hub.View(code)
	changed := make(chan struct{}, 1)
	notify := func(*watchlist.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	cancel := v.OnChange(notify)
	defer func() { cancel() }()

	// 读循环只用于处理 pong 与检测断开
	closed := make(chan struct{})
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	send := func() bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		msg := streamMessage{Type: "snapshot", Data: h.payload(v, q)}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[Stream] 推送失败: %v", err)
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-changed:
			if !send() {
				return
			}
		case <-ticker.C:
			// 保持视图活跃，避免空闲回收
			if next := h.Hub.View(code); next != v {
				cancel()
				v = next
				cancel = v.OnChange(notify)
				if !send() {
					return
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
