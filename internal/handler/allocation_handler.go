package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	"github.com/noah-isme/room-allocation-api/internal/models"
	"github.com/noah-isme/room-allocation-api/internal/service"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
	"github.com/noah-isme/room-allocation-api/pkg/response"
)

type allocationRunner interface {
	Run(ctx context.Context, req dto.AllocationRunRequest) (*dto.AllocationRunResult, error)
	Submit(ctx context.Context, req dto.AllocationRunRequest) (*dto.AllocationRunAccepted, error)
	GetRun(ctx context.Context, id string) (*models.AllocationRun, error)
	DecisionLog(ctx context.Context, id string) ([]byte, error)
	DecisionLogURL(ctx context.Context, id string) (*dto.LogURLResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.RunFile, error)
	ExportRun(ctx context.Context, id string, format models.ExportFormat) (*service.RunFile, error)
	ListSemesterAllocations(ctx context.Context, semesterID string) ([]dto.SemesterAllocationView, error)
}

// AllocationHandler exposes allocation run endpoints.
type AllocationHandler struct {
	service allocationRunner
	prefix  string
}

// NewAllocationHandler constructs the handler. apiPrefix is used to build run status links.
func NewAllocationHandler(svc *service.AllocationService, apiPrefix string) *AllocationHandler {
	return &AllocationHandler{service: svc, prefix: strings.TrimRight(apiPrefix, "/")}
}

// Run godoc
// @Summary Start an allocation run
// @Description Runs synchronously and returns the result, or queues the run when async is true.
// @Tags Allocation
// @Accept json
// @Produce json
// @Param payload body dto.AllocationRunRequest true "Allocation run payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /allocation-runs [post]
func (h *AllocationHandler) Run(c *gin.Context) {
	var req dto.AllocationRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid allocation run payload"))
		return
	}

	if req.Async {
		accepted, err := h.service.Submit(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, h.prefix+"/allocation-runs/"+accepted.RunID, accepted)
		return
	}

	result, err := h.service.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Get godoc
// @Summary Get allocation run status
// @Tags Allocation
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /allocation-runs/{id} [get]
func (h *AllocationHandler) Get(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, run)
}

// Log godoc
// @Summary Download the decision log of a run
// @Tags Allocation
// @Produce plain
// @Param id path string true "Run ID"
// @Success 200 {string} string "decision log"
// @Router /allocation-runs/{id}/log [get]
func (h *AllocationHandler) Log(c *gin.Context) {
	id := c.Param("id")
	data, err := h.service.DecisionLog(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, id+".log", "text/plain; charset=utf-8", data)
}

// LogURL godoc
// @Summary Sign a temporary download link for a decision log
// @Tags Allocation
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /allocation-runs/{id}/log-url [get]
func (h *AllocationHandler) LogURL(c *gin.Context) {
	link, err := h.service.DecisionLogURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, link)
}

// Export godoc
// @Summary Export the outcome table of a finished run
// @Tags Allocation
// @Produce octet-stream
// @Param id path string true "Run ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 412 {object} response.Envelope
// @Router /allocation-runs/{id}/export [get]
func (h *AllocationHandler) Export(c *gin.Context) {
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportFormatCSV))))
	file, err := h.service.ExportRun(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Download godoc
// @Summary Download a file through a signed token
// @Tags Allocation
// @Produce plain
// @Param token path string true "Signed token"
// @Success 200 {string} string "file content"
// @Failure 403 {object} response.Envelope
// @Router /downloads/{token} [get]
func (h *AllocationHandler) Download(c *gin.Context) {
	file, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// SemesterAllocations godoc
// @Summary List committed allocations of a semester
// @Tags Allocation
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id}/allocations [get]
func (h *AllocationHandler) SemesterAllocations(c *gin.Context) {
	items, err := h.service.ListSemesterAllocations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}
