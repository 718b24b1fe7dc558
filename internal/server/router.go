package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"handbook/internal/logger"
)

func NewRouter(cfg Config, svc ChatPort, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	h := &handler{svc: svc, log: log.With("component", "Handler")}

	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	api := router.Group("/api/chatbot")
	api.Use(RequestTimeout(cfg.RequestTimeout))
	{
		api.GET("/courses/", h.Courses)
		api.POST("/chat/", h.Chat)
		api.POST("/test/", h.Test)
	}
	return router
}
