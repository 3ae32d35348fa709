package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// listCodeKey 会话中保存当前列表码的键
const listCodeKey = "list_code"

// ListCode 读取会话中保存的列表码（未加入返回空字符串）
func ListCode(c *gin.Context) string {
	session := sessions.Default(c)
	if code, ok := session.Get(listCodeKey).(string); ok {
		return code
	}
	return ""
}

// SaveListCode 加入列表后持久化列表码
func SaveListCode(c *gin.Context, code string) error {
	session := sessions.Default(c)
	session.Set(listCodeKey, code)
	return session.Save()
}

// ClearListCode 退出列表
func ClearListCode(c *gin.Context) error {
	session := sessions.Default(c)
	session.Delete(listCodeKey)
	return session.Save()
}

// RequireList 条目相关接口必须先加入列表
func RequireList() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := ListCode(c)
		if code == "" {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "请先加入一个列表"})
			return
		}
		c.Set("list_code", code)
		c.Next()
	}
}

// GetListCode 从上下文获取 RequireList 写入的列表码
func GetListCode(c *gin.Context) string {
	return c.GetString("list_code")
}
