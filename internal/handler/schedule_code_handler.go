package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	"github.com/noah-isme/room-allocation-api/internal/service"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
	"github.com/noah-isme/room-allocation-api/pkg/response"
)

// ScheduleCodeHandler previews how schedule codes are interpreted.
type ScheduleCodeHandler struct{}

// NewScheduleCodeHandler constructs the handler.
func NewScheduleCodeHandler() *ScheduleCodeHandler {
	return &ScheduleCodeHandler{}
}

// Decode godoc
// @Summary Decode a schedule code
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body dto.DecodeScheduleRequest true "Schedule code"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedule-codes/decode [post]
func (h *ScheduleCodeHandler) Decode(c *gin.Context) {
	var req dto.DecodeScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decode payload"))
		return
	}

	blocks, err := service.DecodeSchedule(req.Code)
	if err != nil {
		var malformed *service.MalformedScheduleError
		if errors.As(err, &malformed) {
			response.Error(c, appErrors.Clone(appErrors.ErrMalformedSchedule, malformed.Error()))
			return
		}
		response.Error(c, err)
		return
	}

	response.OK(c, dto.DecodeScheduleResponse{
		Code:          req.Code,
		Normalized:    service.EncodeSchedule(blocks),
		HumanReadable: service.HumanReadableSchedule(req.Code),
		Blocks:        blocks,
		Groups:        service.GroupByDay(blocks),
	})
}
