package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/user/cinelist/internal/config"
	"github.com/user/cinelist/internal/handler"
	"github.com/user/cinelist/internal/middleware"
	"github.com/user/cinelist/internal/model"
	"github.com/user/cinelist/internal/realtime"
	"github.com/user/cinelist/internal/repository"
	"github.com/user/cinelist/internal/router"
	"github.com/user/cinelist/internal/service"
	"github.com/user/cinelist/internal/store"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，使用系统环境变量")
	}

	// 加载配置
	cfg := config.Load()

	// 日志同时写入文件（按大小轮转）
	if cfg.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // 天
			Compress:   true,
		}))
	}

	// 初始化数据库
	db, err := repository.InitDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 初始化仓库
	repos := repository.NewRepositories(db)

	sqlDB, err := repos.DB.DB()
	if err != nil {
		log.Fatalf("获取数据库连接池失败: %v", err)
	}
	defer sqlDB.Close()

	// 变更通知：配置了 Redis 时跨实例广播，否则进程内广播
	var broker realtime.Broker
	if cfg.RedisURL != "" {
		broker, err = realtime.NewRedisBroker(cfg.RedisURL, model.CollectionName)
		if err != nil {
			log.Fatalf("Redis 连接失败: %v", err)
		}
		log.Println("变更通知使用 Redis Pub/Sub")
	} else {
		broker = realtime.NewLocalBroker()
		log.Println("未配置 REDIS_URL，变更通知仅在本进程内广播")
	}
	defer broker.Close()

	hub := service.NewHub(
		store.New(repos.Item, broker, store.WithFetchTimeout(cfg.StoreTimeout)),
		cfg.ViewIdleTTL,
	)
	defer hub.Close()

	// 初始化 Gin
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// 启用 gzip，WebSocket 不压缩
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/stream"})))

	// 列表码保存在 Session Cookie 中，跨重启保留
	sessionStore := cookie.NewStore([]byte(cfg.AppSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 365,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("cinelist", sessionStore))

	// 中间件
	r.Use(middleware.Logger())

	// 初始化 Handler
	h := handler.NewHandler(hub, cfg)

	// 注册路由
	router.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 在 goroutine 中启动服务器，这样我们就可以监听信号
	go func() {
		log.Printf("服务器启动于 http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("服务器强制关闭:", err)
	}

	log.Println("服务器已退出")
}
