package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qianlnk/werewolf-rooms/config"
	"github.com/qianlnk/werewolf-rooms/services"
)

func main() {
	cfg, err := config.Load(os.Getenv("WEREWOLF_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	setupLogger(cfg.Log)

	webSocketMgr := services.NewWebSocketManager(cfg.WS)
	roomManager := services.NewRoomManager(webSocketMgr, cfg.Game, services.NewTickerCreator())
	webSocketMgr.SetRoomManager(roomManager)
	log.Info().Msg("初始化完成: WebSocket管理器和房间管理器已配置")

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(cfg, roomManager, webSocketMgr),
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("服务器启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("服务器关闭失败")
	}
	roomManager.Shutdown()
	log.Info().Msg("服务器已关闭")
}

// setupLogger 设置全局日志
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

func newRouter(cfg config.Config, roomManager *services.RoomManager, webSocketMgr *services.WebSocketManager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	if len(cfg.Server.AllowedOrigins) == 0 || contains(cfg.Server.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	upgrader := newUpgrader(cfg.Server.AllowedOrigins)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": roomManager.RoomCount()})
	})

	// WebSocket连接处理
	r.GET("/ws", func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("升级WebSocket连接失败")
			return
		}
		webSocketMgr.HandleConnection(ws)
	})

	api := r.Group("/api")
	{
		api.GET("/rooms", listRooms(roomManager))
		api.GET("/rooms/:id", getRoomInfo(roomManager))
	}
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("请求")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.TrimSpace(v) == s {
			return true
		}
	}
	return false
}

func listRooms(roomManager *services.RoomManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": roomManager.ListRooms()})
	}
}

func getRoomInfo(roomManager *services.RoomManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, err := roomManager.GetRoom(c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, room.Snapshot())
	}
}

// statusFor 错误到 HTTP 状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrRoomNotFound), errors.Is(err, services.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrRoomFull), errors.Is(err, services.ErrNotHost),
		errors.Is(err, services.ErrNotEnoughPlayers), errors.Is(err, services.ErrInvalidRoleConfig),
		errors.Is(err, services.ErrGameInProgress), errors.Is(err, services.ErrAlreadyInRoom):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidName):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
