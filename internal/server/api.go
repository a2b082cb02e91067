package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorlink/backend/internal/auth"
	"github.com/tutorlink/backend/internal/cache"
	"github.com/tutorlink/backend/internal/config"
	apierrors "github.com/tutorlink/backend/internal/errors"
	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/llm"
	"github.com/tutorlink/backend/internal/logging"
	"github.com/tutorlink/backend/internal/middleware"
	"github.com/tutorlink/backend/internal/monitoring"
	"github.com/tutorlink/backend/internal/reclaimer"
	"github.com/tutorlink/backend/internal/session"
	"github.com/tutorlink/backend/internal/upload"
)

// APIServer is the HTTP surface over the session, upload, knowledge,
// and chat services.
type APIServer struct {
	config           *config.Config
	router           *gin.Engine
	db               *pgxpool.Pool
	authService      *auth.Service
	jwtAuthenticator *middleware.JWTAuthenticator
	sessions         *session.Manager
	uploads          *upload.Service
	knowledge        knowledge.Index
	llm              *llm.Client
	reclaimer        *reclaimer.Reclaimer
}

// Deps carries the wired services the server exposes.
type Deps struct {
	DB        *pgxpool.Pool
	Redis     *cache.Redis
	Sessions  *session.Manager
	Uploads   *upload.Service
	Knowledge knowledge.Index
	LLM       *llm.Client
	Reclaimer *reclaimer.Reclaimer
}

// NewAPIServer creates the API server and registers all routes.
func NewAPIServer(cfg *config.Config, deps Deps) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware order matters: recovery first, request id before
	// anything that logs, metrics before the handler chain.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config:           cfg,
		router:           router,
		db:               deps.DB,
		authService:      auth.NewService(deps.DB, &cfg.JWT),
		jwtAuthenticator: middleware.NewJWTAuthenticator(&cfg.JWT),
		sessions:         deps.Sessions,
		uploads:          deps.Uploads,
		knowledge:        deps.Knowledge,
		llm:              deps.LLM,
		reclaimer:        deps.Reclaimer,
	}

	var limiter *cache.RateLimiter
	if deps.Redis != nil {
		limiter = cache.NewRateLimiter(deps.Redis, &cfg.RateLimit)
	}
	srv.setupRoutes(limiter)
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

func (s *APIServer) setupRoutes(limiter *cache.RateLimiter) {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	if limiter != nil {
		v1.Use(middleware.RateLimit(limiter))
	}
	{
		// Auth routes (public)
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", s.handleRegister)
			authGroup.POST("/login", s.handleLogin)
			authGroup.POST("/logout", s.handleLogout)
			authGroup.POST("/refresh", s.handleRefresh)
			authGroup.GET("/me", s.jwtAuthenticator.JWTAuth(), s.handleMe)
		}

		// Session routes (protected)
		sessions := v1.Group("/sessions")
		sessions.Use(s.jwtAuthenticator.JWTAuth())
		{
			sessions.POST("/", s.handleOpenSession)
			sessions.GET("/", s.handleListSessions)
			sessions.GET("/:id", s.handleSessionStatus)
			sessions.POST("/:id/continue", s.handleContinueSession)
			sessions.POST("/:id/extract", s.handleExtractSession)
			sessions.DELETE("/:id", s.handleCloseSession)
		}

		// File routes (protected)
		files := v1.Group("/files")
		files.Use(s.jwtAuthenticator.JWTAuth())
		{
			files.POST("/", s.handleUploadFile)
			files.GET("/", s.handleListFiles)
			files.GET("/:id", s.handleGetFile)
			files.DELETE("/:id", s.handleDeleteFile)
		}

		// Knowledge-base routes (protected)
		kbs := v1.Group("/knowledge-bases")
		kbs.Use(s.jwtAuthenticator.JWTAuth())
		{
			kbs.POST("/", s.handleCreateKnowledgeBase)
			kbs.GET("/", s.handleListKnowledgeBases)
			kbs.GET("/:id", s.handleGetKnowledgeBase)
			kbs.PUT("/:id", s.handleUpdateKnowledgeBase)
			kbs.DELETE("/:id", s.handleDeleteKnowledgeBase)
			kbs.GET("/:id/courses", s.handleListCourses)
		}

		// Course routes (protected)
		courses := v1.Group("/courses")
		courses.Use(s.jwtAuthenticator.JWTAuth())
		{
			courses.GET("/", s.handleListUserCourses)
			courses.GET("/:id", s.handleGetCourse)
			courses.DELETE("/:id", s.handleDeleteCourse)
		}

		// Chat routes (protected)
		chat := v1.Group("/chat")
		chat.Use(s.jwtAuthenticator.JWTAuth())
		{
			chat.POST("/", s.handleChat)
		}

		// Admin routes (protected - requires admin role)
		admin := v1.Group("/admin")
		admin.Use(s.jwtAuthenticator.JWTAuth())
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/reclaim", s.handleReclaim)
		}
	}
}

func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "api",
	})
}

// handleRegister handles user registration
func (s *APIServer) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.authService.Register(c.Request.Context(), &req)
	if err != nil {
		switch err {
		case auth.ErrEmailAlreadyExists:
			respondError(c, apierrors.NewInvalidRequestError("Email already registered"))
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// handleLogin handles user login
func (s *APIServer) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if err == auth.ErrInvalidCredentials {
			respondError(c, apierrors.ErrInvalidCredentialsError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleLogout handles user logout. For stateless JWT the client drops
// the token; nothing to invalidate server-side.
func (s *APIServer) handleLogout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// handleRefresh handles token refresh
func (s *APIServer) handleRefresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	tokens, err := s.authService.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch err {
		case auth.ErrInvalidToken:
			respondError(c, apierrors.ErrInvalidCredentialsError)
		case auth.ErrTokenExpired:
			respondError(c, apierrors.ErrTokenExpiredError)
		case auth.ErrUserNotFound:
			respondError(c, apierrors.ErrUserNotFoundError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// handleMe returns the authenticated user's profile
func (s *APIServer) handleMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := s.authService.Me(c.Request.Context(), userID)
	if err != nil {
		if err == auth.ErrUserNotFound {
			respondError(c, apierrors.ErrUserNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}
	c.JSON(http.StatusOK, user)
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)

	c.JSON(err.HTTPStatus, apierrors.ErrorResponse{
		Error:     *err,
		RequestID: reqIDStr,
	})
}
