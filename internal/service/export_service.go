package service

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	"github.com/noah-isme/room-allocation-api/internal/models"
	"github.com/noah-isme/room-allocation-api/pkg/export"
	"github.com/noah-isme/room-allocation-api/pkg/storage"
)

type fileStorage interface {
	Save(relPath string, data []byte) (string, error)
	ReadFile(relPath string) ([]byte, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(table export.Table, title string) ([]byte, error)
}

// ExportConfig tunes artifact storage and links.
type ExportConfig struct {
	APIPrefix    string
	LogRetention time.Duration
}

// ExportService stores decision logs, signs their download links and renders run outcome tables.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = 30 * 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// DecisionLogPath is the storage path of a run's decision log.
func (s *ExportService) DecisionLogPath(semesterID, runID string) string {
	return path.Join("decision-logs", sanitizeFilename(semesterID), sanitizeFilename(runID)+".log")
}

// SaveDecisionLog writes the rendered log.
func (s *ExportService) SaveDecisionLog(relPath string, data []byte) (string, error) {
	return s.storage.Save(relPath, data)
}

// ReadDecisionLog returns the stored log.
func (s *ExportService) ReadDecisionLog(relPath string) ([]byte, error) {
	data, err := s.storage.ReadFile(relPath)
	if err != nil {
		return nil, fmt.Errorf("read decision log: %w", err)
	}
	return data, nil
}

// SignDownload returns a signed download URL for the stored file.
func (s *ExportService) SignDownload(runID, relPath string) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, fmt.Errorf("download signer not configured")
	}
	token, expiresAt, err := s.signer.Generate(runID, relPath)
	if err != nil {
		return "", time.Time{}, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/downloads/%s", prefix, token), expiresAt, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string) (runID, relPath string, err error) {
	if s.signer == nil {
		return "", "", fmt.Errorf("download signer not configured")
	}
	claim, err := s.signer.Verify(token)
	if err != nil {
		return "", "", err
	}
	return claim.OwnerID, claim.Path, nil
}

// Cleanup removes stored logs older than ttl (defaults to the configured retention when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.LogRetention
	}
	return s.storage.CleanupOlderThan(ttl)
}

// RenderOutcomes renders the per-demand outcome table of a run.
func (s *ExportService) RenderOutcomes(result dto.AllocationRunResult, format models.ExportFormat) ([]byte, string, error) {
	table := outcomeTable(result)
	switch format {
	case models.ExportFormatCSV:
		payload, err := s.csv.Render(table)
		return payload, "text/csv", err
	case models.ExportFormatPDF:
		title := fmt.Sprintf("Allocation run %s (%s)", result.RunID, result.Status)
		payload, err := s.pdf.Render(table, title)
		return payload, "application/pdf", err
	default:
		return nil, "", fmt.Errorf("unsupported format %s", format)
	}
}

var outcomeColumns = []export.Column{
	{Header: "Course", Weight: 1.2},
	{Header: "Section", Weight: 0.8},
	{Header: "Schedule", Weight: 1},
	{Header: "Priority", Weight: 0.8},
	{Header: "Status", Weight: 1.6},
	{Header: "Rooms", Weight: 2},
	{Header: "Reason", Weight: 3},
}

func outcomeTable(result dto.AllocationRunResult) export.Table {
	rows := make([][]string, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		rows = append(rows, []string{
			outcome.CourseCode,
			outcome.Section,
			outcome.ScheduleCode,
			strconv.Itoa(outcome.Priority),
			string(outcome.Status),
			strings.Join(outcomeRoomNames(outcome), " "),
			outcome.Reason,
		})
	}
	return export.Table{Columns: outcomeColumns, Rows: rows}
}

func outcomeRoomNames(outcome dto.DemandOutcome) []string {
	var names []string
	seen := make(map[string]bool)
	for _, group := range outcome.Groups {
		if !group.Allocated || seen[group.RoomID] {
			continue
		}
		seen[group.RoomID] = true
		name := group.RoomName
		if name == "" {
			name = group.RoomID
		}
		names = append(names, name)
	}
	return names
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
