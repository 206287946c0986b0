// Package http exposes the triage pipeline over a fiber API.
package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// Scorer scores one message on demand.
type Scorer interface {
	Process(ctx context.Context, msg *domain.Message) (*domain.ResultRecord, error)
}

// TriageHandler serves scoring and the output of the last run.
type TriageHandler struct {
	scorer  Scorer
	results out.ResultReader
}

// NewTriageHandler creates a handler. Either dependency may be nil, which
// disables the matching route with 503.
func NewTriageHandler(scorer Scorer, results out.ResultReader) *TriageHandler {
	return &TriageHandler{scorer: scorer, results: results}
}

func (h *TriageHandler) Register(app *fiber.App) {
	api := app.Group("/api/v1")
	api.Post("/score", h.Score)
	api.Get("/results", h.Results)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// Score runs one message through the pipeline.
func (h *TriageHandler) Score(c *fiber.Ctx) error {
	if h.scorer == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "scoring pipeline not configured")
	}

	var req domain.Message
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid message body").WithError(err)
	}
	if strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.Body) == "" {
		return apperr.MissingField("subject or body")
	}

	record, err := h.scorer.Process(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

// Results returns the ranked records of the latest run.
func (h *TriageHandler) Results(c *fiber.Ctx) error {
	if h.results == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "result store not configured")
	}

	records, err := h.results.LatestRun(c.UserContext())
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", len(records))
	if limit >= 0 && limit < len(records) {
		records = records[:limit]
	}
	return c.JSON(fiber.Map{
		"count":   len(records),
		"results": records,
	})
}
