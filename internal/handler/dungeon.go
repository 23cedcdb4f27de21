// Package handler provides the HTTP+JSON surface of the run engine.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"dungeon-run-backend/internal/middleware"
	"dungeon-run-backend/internal/model"
	"dungeon-run-backend/internal/repository"
	"dungeon-run-backend/internal/service"
	"dungeon-run-backend/internal/token"
)

// DungeonAPI is the slice of the dungeon service the handler needs.
type DungeonAPI interface {
	Status(ctx context.Context, userID string) (*service.Status, error)
	Start(ctx context.Context, userID string) (*service.StartResult, error)
	Resolve(ctx context.Context, userID, runToken string) (*service.ResolveResult, error)
	AdRun(ctx context.Context, userID string) (*service.AdRunResult, error)
	AdReroll(ctx context.Context, userID, runToken string) error
	Reroll(ctx context.Context, userID, runToken string) (*service.RerollResult, error)
	Claim(ctx context.Context, userID, runToken string) (*service.ClaimResult, error)
	DevReset(ctx context.Context, userID string) (*service.ResetResult, error)
}

// DungeonHandler exposes the run state machine over HTTP.
type DungeonHandler struct {
	svc        DungeonAPI
	production bool
}

// NewDungeonHandler creates a new DungeonHandler.
func NewDungeonHandler(svc DungeonAPI, production bool) *DungeonHandler {
	return &DungeonHandler{svc: svc, production: production}
}

// Register mounts the dungeon routes on the given (authenticated) group.
func (h *DungeonHandler) Register(g *gin.RouterGroup) {
	g.GET("/status", h.Status)
	g.POST("/start", h.Start)
	g.POST("/resolve", h.Resolve)
	g.POST("/ad-run", h.AdRun)
	g.POST("/ad-reroll", h.AdReroll)
	g.POST("/reroll", h.Reroll)
	g.POST("/claim", h.Claim)
	g.POST("/dev-reset", h.DevReset)
}

// tokenRequest is the body of every token-bound operation.
type tokenRequest struct {
	Token string `json:"token"`
}

// Status handles GET /status.
func (h *DungeonHandler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Start handles POST /start.
func (h *DungeonHandler) Start(c *gin.Context) {
	result, err := h.svc.Start(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Resolve handles POST /resolve.
func (h *DungeonHandler) Resolve(c *gin.Context) {
	runToken, ok := h.bindToken(c)
	if !ok {
		return
	}
	result, err := h.svc.Resolve(c.Request.Context(), middleware.UserID(c), runToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdRun handles POST /ad-run.
func (h *DungeonHandler) AdRun(c *gin.Context) {
	result, err := h.svc.AdRun(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdReroll handles POST /ad-reroll.
func (h *DungeonHandler) AdReroll(c *gin.Context) {
	runToken, ok := h.bindToken(c)
	if !ok {
		return
	}
	if err := h.svc.AdReroll(c.Request.Context(), middleware.UserID(c), runToken); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Reroll handles POST /reroll.
func (h *DungeonHandler) Reroll(c *gin.Context) {
	runToken, ok := h.bindToken(c)
	if !ok {
		return
	}
	result, err := h.svc.Reroll(c.Request.Context(), middleware.UserID(c), runToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Claim handles POST /claim.
func (h *DungeonHandler) Claim(c *gin.Context) {
	runToken, ok := h.bindToken(c)
	if !ok {
		return
	}
	result, err := h.svc.Claim(c.Request.Context(), middleware.UserID(c), runToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DevReset handles POST /dev-reset. Refused in production.
func (h *DungeonHandler) DevReset(c *gin.Context) {
	if h.production {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden_in_production"})
		return
	}
	result, err := h.svc.DevReset(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DungeonHandler) bindToken(c *gin.Context) (string, bool) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_token"})
		return "", false
	}
	return req.Token, true
}

// fail maps a service error onto the HTTP taxonomy: state conflicts are
// 400 (expected client flow), a foreign token is 403 and logged as a
// potential abuse signal, store failures are 500.
func (h *DungeonHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, token.ErrTokenMismatch):
		log.Warn().
			Str("user_id", middleware.UserID(c)).
			Str("path", c.Request.URL.Path).
			Msg("Run token presented by wrong user")
		c.JSON(http.StatusForbidden, gin.H{"error": "token_mismatch"})
	case errors.Is(err, token.ErrMalformedToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_token"})
	case errors.Is(err, token.ErrStaleToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "stale_token"})
	case errors.Is(err, repository.ErrRunLimitExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": "run_limit"})
	case errors.Is(err, repository.ErrAdRunsLimitExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": "ad_runs_limit"})
	case errors.Is(err, repository.ErrRunNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "run_not_found"})
	case errors.Is(err, model.ErrNoDropYet):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_drop_yet"})
	case errors.Is(err, model.ErrRerollLimitReached):
		c.JSON(http.StatusBadRequest, gin.H{"error": "reroll_limit_run"})
	case errors.Is(err, model.ErrAdRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "ad_required"})
	case errors.Is(err, model.ErrAlreadyClaimed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "already_claimed"})
	case errors.Is(err, model.ErrAlreadyResolved):
		c.JSON(http.StatusBadRequest, gin.H{"error": "already_resolved"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
