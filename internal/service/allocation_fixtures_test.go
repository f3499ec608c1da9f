package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/room-allocation-api/internal/models"
	"github.com/noah-isme/room-allocation-api/pkg/jobs"
	"github.com/noah-isme/room-allocation-api/pkg/storage"
)

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

type semesterStub struct {
	byID        map[string]models.Semester
	withHistory []models.Semester
}

func (s semesterStub) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	semester, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &semester, nil
}

func (s semesterStub) ListWithAllocations(ctx context.Context) ([]models.Semester, error) {
	return s.withHistory, nil
}

type demandStub []models.Demand

func (d demandStub) ListBySemester(ctx context.Context, semesterID string) ([]models.Demand, error) {
	var out []models.Demand
	for _, demand := range d {
		if demand.SemesterID == semesterID {
			out = append(out, demand)
		}
	}
	return out, nil
}

type roomStub []models.Room

func (r roomStub) ListActive(ctx context.Context) ([]models.Room, error) {
	return append([]models.Room(nil), r...), nil
}

type hardRuleStub []models.HardRuleRecord

func (h hardRuleStub) ListActive(ctx context.Context) ([]models.HardRuleRecord, error) {
	return h, nil
}

type professorStub []models.Professor

func (p professorStub) ListAll(ctx context.Context) ([]models.Professor, error) {
	return p, nil
}

type preferenceStub []models.ProfessorPreferenceRecord

func (p preferenceStub) ListAll(ctx context.Context) ([]models.ProfessorPreferenceRecord, error) {
	return p, nil
}

type staticWeights models.ScoringWeights

func (w staticWeights) Current() models.ScoringWeights {
	return models.ScoringWeights(w)
}

// memoryAllocationStore keeps committed rows and history in memory.
type memoryAllocationStore struct {
	mu        sync.Mutex
	rows      []models.Allocation
	history   []models.HistoricalAllocation
	inserted  []models.Allocation
	insertErr error
	lookupErr error
	onLookup  func()
}

func (m *memoryAllocationStore) FindOccupied(ctx context.Context, semesterID string, slots []models.RoomSlot) ([]models.BookedSlot, error) {
	m.mu.Lock()
	hook := m.onLookup
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := make(map[models.RoomSlot]string)
	for _, row := range m.rows {
		if row.SemesterID == semesterID {
			owners[row.Slot()] = row.DemandID
		}
	}
	var out []models.BookedSlot
	for _, slot := range slots {
		if owner, ok := owners[slot]; ok {
			out = append(out, models.BookedSlot{RoomSlot: slot, DemandID: owner})
		}
	}
	return out, nil
}

func (m *memoryAllocationStore) ExistsInSemester(ctx context.Context, semesterID string, slot models.RoomSlot, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.SemesterID == semesterID && row.Slot() == slot && row.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryAllocationStore) CountByRoom(ctx context.Context, semesterID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, row := range m.rows {
		if row.SemesterID == semesterID {
			counts[row.RoomID]++
		}
	}
	return counts, nil
}

func (m *memoryAllocationStore) ListHistory(ctx context.Context, excludeSemesterID string) ([]models.HistoricalAllocation, error) {
	var out []models.HistoricalAllocation
	for _, record := range m.history {
		if record.SemesterID != excludeSemesterID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memoryAllocationStore) ListHistoryBySemester(ctx context.Context, semesterID string) ([]models.HistoricalAllocation, error) {
	var out []models.HistoricalAllocation
	for _, record := range m.history {
		if record.SemesterID == semesterID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memoryAllocationStore) InsertBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.Allocation) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, rows...)
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memoryAllocationStore) DeleteByDemands(ctx context.Context, exec sqlx.ExtContext, semesterID string, demandIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(demandIDs))
	for _, id := range demandIDs {
		drop[id] = true
	}
	kept := m.rows[:0]
	var removed int64
	for _, row := range m.rows {
		if row.SemesterID == semesterID && drop[row.DemandID] {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return removed, nil
}

func (m *memoryAllocationStore) ListBySemester(ctx context.Context, semesterID string) ([]models.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Allocation
	for _, row := range m.rows {
		if row.SemesterID == semesterID {
			out = append(out, row)
		}
	}
	return out, nil
}

type memoryRunStore struct {
	mu   sync.Mutex
	runs map[string]models.AllocationRun
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: make(map[string]models.AllocationRun)}
}

func (m *memoryRunStore) Create(ctx context.Context, run *models.AllocationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRunStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	run.Status = models.AllocationRunRunning
	run.StartedAt = startedAt
	m.runs[id] = run
	return nil
}

func (m *memoryRunStore) Finish(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRunStore) FindByID(ctx context.Context, id string) (*models.AllocationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &run, nil
}

func (m *memoryRunStore) ListQueued(ctx context.Context, limit int) ([]models.AllocationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AllocationRun
	for _, run := range m.runs {
		if run.Status == models.AllocationRunQueued {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRunStore) get(id string) models.AllocationRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

type recordingDispatcher struct {
	jobs []jobs.Job
	err  error
}

func (r *recordingDispatcher) Enqueue(job jobs.Job) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

type allocationFixture struct {
	semesters   semesterStub
	demands     []models.Demand
	rooms       []models.Room
	rules       []models.HardRuleRecord
	professors  []models.Professor
	preferences []models.ProfessorPreferenceRecord
	store       *memoryAllocationStore
	runs        *memoryRunStore
	locker      runLocker
	queue       runDispatcher
	tx          txProvider
	weights     models.ScoringWeights
}

func classroom(id, name string, capacity int) models.Room {
	return models.Room{ID: id, Name: name, Capacity: capacity, RoomTypeID: "type-class", RoomTypeCode: models.RoomTypeRegularClassroom}
}

func labRoom(id, name string, capacity int) models.Room {
	return models.Room{ID: id, Name: name, Capacity: capacity, RoomTypeID: "type-chem", RoomTypeCode: "CHEMISTRY_LAB"}
}

func newAllocationFixture() *allocationFixture {
	return &allocationFixture{
		semesters: semesterStub{byID: map[string]models.Semester{
			"sem-0": {ID: "sem-0", Code: "2024.2", StartsOn: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
			"sem-1": {ID: "sem-1", Code: "2025.1", StartsOn: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		}},
		professors: []models.Professor{{ID: "prof-1", Name: "Ada Lovelace"}, {ID: "prof-2", Name: "Alan Turing"}},
		store:      &memoryAllocationStore{},
		runs:       newMemoryRunStore(),
		weights:    models.DefaultScoringWeights(),
	}
}

func (f *allocationFixture) service(t *testing.T) (*AllocationService, *ExportService) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	artifacts := NewExportService(store, storage.NewSignedURLSigner("secret", time.Hour), ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop(), nil, nil)

	svc := NewAllocationService(AllocationDependencies{
		Semesters:   f.semesters,
		Demands:     demandStub(f.demands),
		Rooms:       roomStub(f.rooms),
		Rules:       hardRuleStub(f.rules),
		Professors:  professorStub(f.professors),
		Preferences: preferenceStub(f.preferences),
		Allocations: f.store,
		Runs:        f.runs,
		Weights:     staticWeights(f.weights),
		Locker:      f.locker,
		Artifacts:   artifacts,
		Queue:       f.queue,
		Tx:          f.tx,
	}, nil, zap.NewNop(), AllocationServiceConfig{})
	return svc, artifacts
}

func demand(id, course string, seats int, schedule string, professors ...string) models.Demand {
	return models.Demand{
		ID:             id,
		SemesterID:     "sem-1",
		CourseCode:     course,
		Section:        "A",
		ProfessorNames: professors,
		SeatCount:      seats,
		ScheduleCode:   schedule,
	}
}

func booked(id, roomID string, day int, block string) models.Allocation {
	return models.Allocation{ID: id, RunID: "run-old", SemesterID: "sem-1", DemandID: "dem-old", RoomID: roomID, Day: day, Block: block}
}
