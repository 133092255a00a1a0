package handlers

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/generation"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// DocumentGenerator runs the document generation engines.
type DocumentGenerator interface {
	GenerateConsolidated(ctx context.Context, accountIDs []int64, rtaID int64) (*generation.Result, error)
	GenerateNomineeDocuments(ctx context.Context, filter generation.NomineeFilter) ([]generation.ItemResult, error)
}

// DocumentHandler handles document generation API endpoints
type DocumentHandler struct {
	generator DocumentGenerator
	logger    ectologger.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(generator DocumentGenerator, logger ectologger.Logger) *DocumentHandler {
	return &DocumentHandler{
		generator: generator,
		logger:    logger,
	}
}

// GenerateConsolidatedRequest represents the consolidated generation request body
type GenerateConsolidatedRequest struct {
	RTAID      int64   `json:"rta_id" validate:"required"`
	AccountIDs []int64 `json:"account_ids" validate:"required,min=1"`
}

// GenerateNomineeRequest represents the nominee generation request body.
// RTAID is optional; when absent the run covers every registrar.
type GenerateNomineeRequest struct {
	RTAID             int64  `json:"rta_id,omitempty"`
	Date              string `json:"date,omitempty"`
	AccountID         *int64 `json:"account_id,omitempty"`
	ServiceProviderID *int64 `json:"service_provider_id,omitempty"`
}

// NomineeRunResponse summarizes a nominee generation run
type NomineeRunResponse struct {
	Total     int                     `json:"total"`
	Generated int                     `json:"generated"`
	Failed    int                     `json:"failed"`
	Items     []generation.ItemResult `json:"items"`
}

// Register registers document generation routes
func (h *DocumentHandler) Register(g *echo.Group) {
	g.POST("/consolidated/generate", h.GenerateConsolidated)
	g.POST("/nominee/generate", h.GenerateNominee)
}

// GenerateConsolidated runs the consolidated document engine for the
// requested accounts and returns the archive details.
func (h *DocumentHandler) GenerateConsolidated(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DocumentHandler.GenerateConsolidated")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req GenerateConsolidatedRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	result, err := h.generator.GenerateConsolidated(ctx, req.AccountIDs, req.RTAID)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Consolidated generation failed")
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"archive_name":   result.ArchiveName,
		"document_count": result.DocumentCount,
	}).Info("Consolidated generation completed")

	return SuccessResponse(c, result)
}

// GenerateNominee runs the nominee document engine for the pending
// order items matched by the request filters.
func (h *DocumentHandler) GenerateNominee(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DocumentHandler.GenerateNominee")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req GenerateNomineeRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	day := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return BadRequest("invalid date: must be YYYY-MM-DD")
		}
		day = parsed
	}

	results, err := h.generator.GenerateNomineeDocuments(ctx, generation.NomineeFilter{
		Day:               day,
		RTAID:             req.RTAID,
		AccountID:         req.AccountID,
		ServiceProviderID: req.ServiceProviderID,
	})
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Nominee generation failed")
		return err
	}

	resp := NomineeRunResponse{
		Total: len(results),
		Items: results,
	}
	for _, item := range results {
		if item.Err != nil || item.Error != "" {
			resp.Failed++
		} else {
			resp.Generated++
		}
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"total":     resp.Total,
		"generated": resp.Generated,
		"failed":    resp.Failed,
	}).Info("Nominee generation completed")

	return SuccessResponse(c, resp)
}
