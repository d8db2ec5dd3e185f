package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"gopherchat/internal/bootstrap"
	"gopherchat/internal/transport/http/handler"
	"gopherchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestLogger(app.Logger),
		middleware.Recovery(app.Logger),
		middleware.Metrics(app.Metrics),
		cors.New(corsConfig(app.Config.HTTP.AllowedOrigins)),
	)

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	authHandler := handler.NewAuthHandler(app.Auth)
	userHandler := handler.NewUserHandler(app.Users)
	protect := app.Config.Auth.ProtectChatByID
	chatHandler := handler.NewChatHandler(app.Chat, protect)

	requireSession := middleware.AuthJWT(app.Auth)
	limiter := middleware.NewIPRateLimiter(
		app.Config.HTTP.AuthRatePerMinute,
		app.Config.HTTP.AuthRateBurst,
		app.Metrics,
	).Handler()

	authGroup := router.Group("/auth")
	authGroup.POST("/login", limiter, authHandler.Login)
	authGroup.POST("/refresh", limiter, authHandler.Refresh)
	authGroup.POST("/logout", requireSession, authHandler.Logout)
	authGroup.GET("/me", requireSession, authHandler.Me)

	userGroup := router.Group("/user")
	userGroup.POST("", limiter, userHandler.Register)
	userGroup.GET("", requireSession, middleware.RequireAdmin(), userHandler.List)
	userGroup.PATCH("/:id", requireSession, userHandler.Update)
	userGroup.DELETE("/:id", requireSession, userHandler.Delete)

	chatGroup := router.Group("/chat")
	chatGroup.POST("", requireSession, chatHandler.Create)
	chatGroup.GET("/my-chats", requireSession, chatHandler.MyChats)
	chatGroup.POST("/send-message", requireSession, chatHandler.SendMessage)

	// id-addressed routes are open unless ownership protection is enabled
	byID := chatGroup.Group("")
	if protect {
		byID.Use(requireSession)
	}
	byID.GET("/user/:id", chatHandler.ListByUser)
	byID.GET("/:id", chatHandler.Get)
	byID.DELETE("/:id", chatHandler.Delete)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
