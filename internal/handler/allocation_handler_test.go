package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	internalmiddleware "github.com/noah-isme/room-allocation-api/internal/middleware"
	"github.com/noah-isme/room-allocation-api/internal/models"
	"github.com/noah-isme/room-allocation-api/internal/service"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

type allocationRunnerMock struct {
	captured   dto.AllocationRunRequest
	ranSync    bool
	submitted  bool
	runErr     error
	exportedAs models.ExportFormat
}

func (m *allocationRunnerMock) Run(ctx context.Context, req dto.AllocationRunRequest) (*dto.AllocationRunResult, error) {
	m.captured = req
	m.ranSync = true
	if m.runErr != nil {
		return nil, m.runErr
	}
	return &dto.AllocationRunResult{RunID: "run-1", SemesterID: req.SemesterID, Status: models.AllocationRunCompleted, Success: true}, nil
}

func (m *allocationRunnerMock) Submit(ctx context.Context, req dto.AllocationRunRequest) (*dto.AllocationRunAccepted, error) {
	m.captured = req
	m.submitted = true
	return &dto.AllocationRunAccepted{RunID: "run-2", SemesterID: req.SemesterID, Status: models.AllocationRunQueued}, nil
}

func (m *allocationRunnerMock) GetRun(ctx context.Context, id string) (*models.AllocationRun, error) {
	if id != "run-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation run not found")
	}
	return &models.AllocationRun{ID: id, SemesterID: "2024-1", Status: models.AllocationRunCompleted}, nil
}

func (m *allocationRunnerMock) DecisionLog(ctx context.Context, id string) ([]byte, error) {
	return []byte("=== allocation run run-1 ===\n"), nil
}

func (m *allocationRunnerMock) DecisionLogURL(ctx context.Context, id string) (*dto.LogURLResponse, error) {
	return &dto.LogURLResponse{URL: "/api/v1/downloads/token"}, nil
}

func (m *allocationRunnerMock) ResolveDownload(ctx context.Context, token string) (*service.RunFile, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return &service.RunFile{Filename: "run-1.log", ContentType: "text/plain; charset=utf-8", Data: []byte("log")}, nil
}

func (m *allocationRunnerMock) ExportRun(ctx context.Context, id string, format models.ExportFormat) (*service.RunFile, error) {
	m.exportedAs = format
	return &service.RunFile{Filename: "allocation_run-1.csv", ContentType: "text/csv", Data: []byte("Course\n")}, nil
}

func (m *allocationRunnerMock) ListSemesterAllocations(ctx context.Context, semesterID string) ([]dto.SemesterAllocationView, error) {
	return []dto.SemesterAllocationView{{Schedule: "Mon 07:30-09:10"}}, nil
}

func newAllocationRouter(mock *allocationRunnerMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := &AllocationHandler{service: mock, prefix: "/api/v1"}
	router := gin.New()
	router.POST("/allocation-runs", handler.Run)
	router.GET("/allocation-runs/:id", handler.Get)
	router.GET("/allocation-runs/:id/log", handler.Log)
	router.GET("/allocation-runs/:id/log-url", handler.LogURL)
	router.GET("/allocation-runs/:id/export", handler.Export)
	router.GET("/downloads/:token", handler.Download)
	router.GET("/semesters/:id/allocations", handler.SemesterAllocations)
	return router
}

func TestAllocationRunSync(t *testing.T) {
	mock := &allocationRunnerMock{}
	router := newAllocationRouter(mock)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/allocation-runs", bytes.NewReader([]byte(`{"semesterId":"2024-1","includeHardRules":false}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mock.ranSync)
	assert.Equal(t, "2024-1", mock.captured.SemesterID)
	assert.False(t, mock.captured.HardRulesEnabled())
	assert.True(t, mock.captured.SoftPreferencesEnabled())

	var body struct {
		Data dto.AllocationRunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.Data.RunID)
}

func TestAllocationRunAsync(t *testing.T) {
	mock := &allocationRunnerMock{}
	router := newAllocationRouter(mock)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/allocation-runs", bytes.NewReader([]byte(`{"semesterId":"2024-1","async":true}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, mock.submitted)
	assert.False(t, mock.ranSync)
	assert.Equal(t, "/api/v1/allocation-runs/run-2", w.Header().Get("Location"))
}

func TestAllocationRunErrors(t *testing.T) {
	mock := &allocationRunnerMock{runErr: appErrors.ErrRunInProgress}
	router := newAllocationRouter(mock)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/allocation-runs", bytes.NewReader([]byte(`{"semesterId":"2024-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrRunInProgress.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/allocation-runs", bytes.NewReader([]byte(`{"semesterId":`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAllocationGetRun(t *testing.T) {
	router := newAllocationRouter(&allocationRunnerMock{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/allocation-runs/run-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"COMPLETED"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/allocation-runs/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAllocationLogAndDownload(t *testing.T) {
	router := newAllocationRouter(&allocationRunnerMock{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/allocation-runs/run-1/log", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="run-1.log"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Body.String(), "allocation run run-1")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/allocation-runs/run-1/log-url", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/downloads/token")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/downloads/good", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "log", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/downloads/bad", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAllocationExportDefaultsToCSV(t *testing.T) {
	mock := &allocationRunnerMock{}
	router := newAllocationRouter(mock)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/allocation-runs/run-1/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ExportFormatCSV, mock.exportedAs)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/allocation-runs/run-1/export?format=PDF", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ExportFormatPDF, mock.exportedAs)
}

func TestAllocationSemesterAllocations(t *testing.T) {
	router := newAllocationRouter(&allocationRunnerMock{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/semesters/2024-1/allocations", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestAllocationRunRequiresAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &AllocationHandler{service: &allocationRunnerMock{}}

	router := gin.New()
	router.POST("/allocation-runs", internalmiddleware.RequireRoles(models.RoleAdmin), handler.Run)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/allocation-runs", bytes.NewReader([]byte(`{"semesterId":"2024-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	router = gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "viewer-1", Role: models.RoleViewer})
		c.Next()
	})
	router.POST("/allocation-runs", internalmiddleware.RequireRoles(models.RoleAdmin), handler.Run)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/allocation-runs", bytes.NewReader([]byte(`{"semesterId":"2024-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
