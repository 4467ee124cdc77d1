// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package handler provides HTTP request handlers for the run status API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vrtdev/nexus-api-tools/internal/models"
	apperrors "github.com/vrtdev/nexus-api-tools/internal/pkg/errors"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/logger"
	"github.com/vrtdev/nexus-api-tools/internal/repository"
)

// StatusHandler serves read-only views of the current migration run so a
// long-running migration can be watched with curl or a browser.
type StatusHandler struct {
	repo   repository.RunRepository
	logger logger.Logger
}

// NewStatusHandler creates a new StatusHandler instance.
func NewStatusHandler(repo repository.RunRepository, logger logger.Logger) *StatusHandler {
	return &StatusHandler{
		repo:   repo,
		logger: logger,
	}
}

// handleError processes errors and sends appropriate HTTP responses.
func (h *StatusHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNoRun), errors.Is(err, repository.ErrActionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.IsConfig(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// GetRun returns the run overview with per-state action totals.
//
// Response (200 OK):
//
//	{"id": "run-uuid", "file": "actions.yaml", "total": 5, "states": {"done": 2, "pending": 3}, ...}
//
// Error responses: 404 (no run registered)
func (h *StatusHandler) GetRun(c *gin.Context) {
	run, err := h.repo.Run()
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, run.Summary())
}

// ListActions returns the run's actions in file order.
//
// Query parameters:
//   - state (optional): filter by action state (pending, fetching, fetched,
//     uploading, done, skipped, failed)
//
// Response (200 OK):
//
//	{"total": 2, "actions": [{"repo": "...", "state": "...", ...}]}
//
// Error responses: 400 (invalid state filter), 404 (no run registered)
func (h *StatusHandler) ListActions(c *gin.Context) {
	var state models.State
	if q := c.Query("state"); q != "" {
		parsed, err := models.ParseState(q)
		if err != nil {
			h.handleError(c, apperrors.WrapConfig(err, "Invalid state filter"))
			return
		}
		state = parsed
	}

	actions, err := h.repo.ListActions(state)
	if err != nil {
		h.handleError(c, err)
		return
	}

	summaries := make([]*models.ActionSummary, 0, len(actions))
	for _, a := range actions {
		summaries = append(summaries, a.Summary())
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   len(summaries),
		"actions": summaries,
	})
}

// GetAction returns one action including its per-artifact log lines.
//
// Response (200 OK):
//
//	{"repo": "...", "state": "...", "result": {...}, "logs": ["downloaded ...", ...]}
//
// Error responses: 404 (no run registered, or no action for the repo)
func (h *StatusHandler) GetAction(c *gin.Context) {
	a, err := h.repo.GetAction(c.Param("repo"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Detail())
}

// Health performs a health check.
//
// Response (200 OK):
//
//	{"status": "ok"}
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
