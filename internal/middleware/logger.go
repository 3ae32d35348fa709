package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger 请求日志中间件，附带列表码与请求错误；健康检查不记录
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		start := time.Now()

		c.Next()

		line := []interface{}{c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status(), time.Since(start)}
		format := "[%s] %s %s %d %v"
		if code := GetListCode(c); code != "" {
			format += " list=%s"
			line = append(line, code)
		}
		if len(c.Errors) > 0 {
			format += " errors=%s"
			line = append(line, c.Errors.String())
		}
		log.Printf(format, line...)
	}
}
