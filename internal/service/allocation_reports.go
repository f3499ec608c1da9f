package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	"github.com/noah-isme/room-allocation-api/internal/models"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

// RunFile is a rendered run artifact ready to be streamed.
type RunFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// GetRun returns the run record, serving stopped runs from cache.
func (s *AllocationService) GetRun(ctx context.Context, id string) (*models.AllocationRun, error) {
	var cached models.AllocationRun
	if hit, _ := s.cache.Get(ctx, runCacheKey(id), &cached); hit {
		return &cached, nil
	}
	run, err := s.findRun(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheRun(ctx, run)
	return run, nil
}

// GetRunResult decodes the stored result of a stopped run.
func (s *AllocationService) GetRunResult(ctx context.Context, id string) (*dto.AllocationRunResult, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Terminal() || len(run.Summary) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "allocation run has not finished")
	}
	var result dto.AllocationRunResult
	if err := json.Unmarshal(run.Summary, &result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode run summary")
	}
	return &result, nil
}

// DecisionLog returns the decision log text of a run.
func (s *AllocationService) DecisionLog(ctx context.Context, id string) ([]byte, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.readLog(run)
}

// DecisionLogURL signs a download link for the decision log of a run.
func (s *AllocationService) DecisionLogURL(ctx context.Context, id string) (*dto.LogURLResponse, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.artifacts == nil || run.LogPath == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "decision log not available")
	}
	url, expiresAt, err := s.artifacts.SignDownload(run.ID, *run.LogPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign decision log link")
	}
	return &dto.LogURLResponse{URL: url, ExpiresAt: expiresAt}, nil
}

// ResolveDownload validates a signed token and returns the referenced decision log.
func (s *AllocationService) ResolveDownload(ctx context.Context, token string) (*RunFile, error) {
	if s.artifacts == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "downloads are not available")
	}
	runID, relPath, err := s.artifacts.ParseToken(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.LogPath == nil || *run.LogPath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download token does not match run")
	}
	data, err := s.readLog(run)
	if err != nil {
		return nil, err
	}
	return &RunFile{Filename: path.Base(relPath), ContentType: "text/plain; charset=utf-8", Data: data}, nil
}

// ExportRun renders the outcome table of a stopped run.
func (s *AllocationService) ExportRun(ctx context.Context, id string, format models.ExportFormat) (*RunFile, error) {
	if format != models.ExportFormatCSV && format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if s.artifacts == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are not available")
	}
	result, err := s.GetRunResult(ctx, id)
	if err != nil {
		return nil, err
	}
	data, contentType, err := s.artifacts.RenderOutcomes(*result, format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render run export")
	}
	return &RunFile{
		Filename:    fmt.Sprintf("allocation_%s.%s", sanitizeFilename(id), format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// ListSemesterAllocations returns the committed bookings of a semester with readable schedules.
func (s *AllocationService) ListSemesterAllocations(ctx context.Context, semesterID string) ([]dto.SemesterAllocationView, error) {
	var cached []dto.SemesterAllocationView
	if hit, _ := s.cache.Get(ctx, semesterAllocationsCacheKey(semesterID), &cached); hit {
		return cached, nil
	}
	if _, err := s.semesters.FindByID(ctx, semesterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	rows, err := s.allocations.ListBySemester(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list allocations")
	}
	views := make([]dto.SemesterAllocationView, 0, len(rows))
	for _, row := range rows {
		views = append(views, dto.SemesterAllocationView{
			Allocation: row,
			Schedule:   HumanReadableSchedule(strconv.Itoa(row.Day) + row.Block),
		})
	}
	_ = s.cache.Set(ctx, semesterAllocationsCacheKey(semesterID), views, s.cfg.RunCacheTTL)
	return views, nil
}

func (s *AllocationService) readLog(run *models.AllocationRun) ([]byte, error) {
	if s.artifacts == nil || run.LogPath == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "decision log not available")
	}
	data, err := s.artifacts.ReadDecisionLog(*run.LogPath)
	if err != nil {
		s.logger.Warn("decision log unreadable", zap.String("run_id", run.ID), zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrNotFound, "decision log not available")
	}
	return data, nil
}
