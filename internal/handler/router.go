package handler

import (
	"time"

	"pdf-faq-go/internal/middleware"
	"pdf-faq-go/internal/service"
	"pdf-faq-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// RouterDeps 是注册路由所需的服务。
type RouterDeps struct {
	UserService     service.UserService
	DocumentService service.DocumentService
	QAService       service.QAService
	SearchService   service.SearchService
	JWTManager      *token.JWTManager
	// WordDelay 是 WebSocket 逐词推送的间隔
	WordDelay time.Duration
}

// SetupRouter 创建 Gin 引擎并注册全部路由。
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := NewUserHandler(deps.UserService)
	documentHandler := NewDocumentHandler(deps.DocumentService)
	qaHandler := NewQAHandler(deps.QAService)
	searchHandler := NewSearchHandler(deps.SearchService)
	chatHandler := NewChatHandler(deps.QAService, deps.UserService, deps.JWTManager, deps.WordDelay)
	authMiddleware := middleware.AuthMiddleware(deps.JWTManager, deps.UserService)

	apiV1 := r.Group("/api/v1")
	{
		users := apiV1.Group("/users")
		{
			// 无需认证的路由
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.GET("/me", authMiddleware, userHandler.GetProfile)
		}

		documents := apiV1.Group("/documents")
		documents.Use(authMiddleware)
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.DELETE("/:id", documentHandler.Delete)
		}

		qa := apiV1.Group("/qa")
		qa.Use(authMiddleware)
		{
			qa.POST("/ask", qaHandler.Ask)
			qa.GET("/history", qaHandler.History)
			qa.DELETE("/history", qaHandler.ClearHistory)
		}

		search := apiV1.Group("/search")
		search.Use(authMiddleware)
		{
			search.GET("/passages", searchHandler.SearchPassages)
		}
	}

	// WebSocket 无法携带 Authorization 头，token 放在路径里
	r.GET("/chat/:token", chatHandler.Handle)
	return r
}
