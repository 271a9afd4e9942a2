// Package handlers exposes the agent's run status and history over the
// local HTTP API. Handlers delegate to the orchestrator and the run store
// and only deal with HTTP semantics.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/loopback-labs/e2e-agent/api/v1"
	"github.com/loopback-labs/e2e-agent/internal/services"
	"github.com/loopback-labs/e2e-agent/internal/store"
	srvErrors "github.com/loopback-labs/e2e-agent/pkg/errors"
)

const defaultListLimit = 50

type Handler struct {
	orchestrator *services.Orchestrator
	runs         *store.RunStore
}

// New builds the handler set. runs may be nil when history is disabled.
func New(orchestrator *services.Orchestrator, runs *store.RunStore) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		runs:         runs,
	}
}

// Register wires the routes into the /api/v1 group.
func (h *Handler) Register(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)
	router.GET("/runs", h.ListRuns)
	router.GET("/runs/:id", h.GetRun)
}

// GetStatus returns the current run snapshot.
// (GET /status)
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, v1.NewRunStatusResponse(h.orchestrator.Status()))
}

// ListRuns returns run history, newest first.
// (GET /runs)
func (h *Handler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}
	runs, err := h.runs.ListRuns(c.Request.Context(), store.WithLimit(defaultListLimit))
	if err != nil {
		zap.S().Named("handlers").Errorw("failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	out := make([]v1.RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, v1.NewRunResponse(run))
	}
	c.JSON(http.StatusOK, out)
}

// GetRun returns one run with its suites.
// (GET /runs/:id)
func (h *Handler) GetRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if srvErrors.IsRunNotFoundError(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		zap.S().Named("handlers").Errorw("failed to load run", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}
	c.JSON(http.StatusOK, v1.NewRunResponse(*run))
}
