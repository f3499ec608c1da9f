package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-allocation-api/internal/models"
	"github.com/noah-isme/room-allocation-api/internal/service"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
	"github.com/noah-isme/room-allocation-api/pkg/response"
)

type scoringConfigurator interface {
	Snapshot() service.ScoringSnapshot
	Update(ctx context.Context, weights models.ScoringWeights) (service.ScoringSnapshot, error)
	Reload(ctx context.Context) (service.ScoringSnapshot, error)
}

// ScoringConfigHandler manages the weights used by new allocation runs.
type ScoringConfigHandler struct {
	service scoringConfigurator
}

// NewScoringConfigHandler constructs the handler.
func NewScoringConfigHandler(svc *service.ScoringConfigService) *ScoringConfigHandler {
	return &ScoringConfigHandler{service: svc}
}

// Get godoc
// @Summary Get the scoring weights in force
// @Tags Scoring
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scoring-weights [get]
func (h *ScoringConfigHandler) Get(c *gin.Context) {
	response.OK(c, h.service.Snapshot())
}

// Update godoc
// @Summary Replace the scoring weights
// @Description Runs already in progress keep the weights they started with.
// @Tags Scoring
// @Accept json
// @Produce json
// @Param payload body models.ScoringWeights true "Scoring weights"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /scoring-weights [put]
func (h *ScoringConfigHandler) Update(c *gin.Context) {
	var weights models.ScoringWeights
	if err := c.ShouldBindJSON(&weights); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scoring weights payload"))
		return
	}
	snapshot, err := h.service.Update(c.Request.Context(), weights)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, snapshot)
}

// Reload godoc
// @Summary Reload scoring weights from the profile store
// @Tags Scoring
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scoring-weights/reload [post]
func (h *ScoringConfigHandler) Reload(c *gin.Context) {
	snapshot, err := h.service.Reload(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, snapshot)
}
