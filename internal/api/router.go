// Package api exposes the REST routes and the session and terminal sockets.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/windschord/claude-work/internal/auth"
	"github.com/windschord/claude-work/internal/common/httpmw"
	"github.com/windschord/claude-work/internal/common/logger"
	gwws "github.com/windschord/claude-work/internal/gateway/websocket"
	"github.com/windschord/claude-work/internal/session"
	"github.com/windschord/claude-work/internal/store"
)

// Dependencies are the services the routes are served from.
type Dependencies struct {
	Store       *store.Store
	Sessions    *session.Orchestrator
	Auth        *auth.Service
	SessionHub  *gwws.Hub
	TerminalHub *gwws.Hub
	ServiceName string
}

// NewRouter creates the gin engine with the shared middleware and every
// route registered.
func NewRouter(deps Dependencies, log *logger.Logger) *gin.Engine {
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "claude-work"
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		httpmw.RequestID(),
		httpmw.OtelTracing(serviceName),
		httpmw.RequestLogger(log),
	)
	SetupRoutes(router, deps, log)
	return router
}

// SetupRoutes registers the API and socket routes on router.
func SetupRoutes(router *gin.Engine, deps Dependencies, log *logger.Logger) {
	h := NewHandler(deps.Store, deps.Sessions, deps.Auth, log)

	router.GET("/health", h.HealthCheck)

	authRoutes := router.Group("/api/auth")
	{
		authRoutes.POST("/login", h.Login)
		authRoutes.POST("/logout", h.Logout)
	}

	protected := router.Group("/api", deps.Auth.Middleware())

	projects := protected.Group("/projects")
	{
		projects.GET("", h.ListProjects)
		projects.POST("", h.CreateProject)
		projects.GET("/:id", h.GetProject)
		projects.PUT("/:id", h.UpdateProject)
		projects.DELETE("/:id", h.DeleteProject)

		projects.GET("/:id/sessions", h.ListSessions)
		projects.POST("/:id/sessions", h.CreateSession)

		projects.GET("/:id/run-scripts", h.ListRunScripts)
		projects.POST("/:id/run-scripts", h.CreateRunScript)
		projects.PUT("/:id/run-scripts/:script_id", h.UpdateRunScript)
		projects.DELETE("/:id/run-scripts/:script_id", h.DeleteRunScript)

		projects.GET("/:id/prompt-history", h.ListPromptHistory)
		projects.POST("/:id/prompt-history", h.CreatePromptHistory)
		projects.DELETE("/:id/prompt-history/:history_id", h.DeletePromptHistory)
	}

	sessions := protected.Group("/sessions")
	{
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/stop", h.StopSession)
		sessions.DELETE("/:id", h.DeleteSession)

		sessions.GET("/:id/diff", h.GetDiff)
		sessions.POST("/:id/rebase", h.Rebase)
		sessions.POST("/:id/merge", h.Merge)
		sessions.GET("/:id/commits", h.ListCommits)
		sessions.GET("/:id/commits/:hash/diff", h.GetCommitDiff)
		sessions.POST("/:id/commits/:hash/reset", h.ResetToCommit)
		sessions.GET("/:id/status", h.GetGitStatus)

		sessions.POST("/:id/scripts/:script_id/run", h.RunScript)
	}

	sessionSocket := gwws.NewSessionHandler(deps.SessionHub, deps.Sessions, deps.Sessions, log)
	terminalSocket := gwws.NewTerminalHandler(deps.TerminalHub, terminalController{deps.Sessions}, log)

	sockets := router.Group("/ws", deps.Auth.Middleware())
	{
		sockets.GET("/sessions/:id", sessionSocket.HandleConnection)
		sockets.GET("/terminal/:id", terminalSocket.HandleConnection)
	}
}
