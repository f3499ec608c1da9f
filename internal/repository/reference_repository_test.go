package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

func TestSemesterRepositoryListWithAllocations(t *testing.T) {
	db, mock, cleanup := newAllocationRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	fall := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	spring := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY s.starts_on DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "starts_on"}).
			AddRow("sem-2", "2025.2", fall).
			AddRow("sem-1", "2025.1", spring))

	semesters, err := repo.ListWithAllocations(context.Background())
	require.NoError(t, err)
	require.Len(t, semesters, 2)
	assert.Equal(t, "sem-2", semesters[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDemandRepositoryListBySemester(t *testing.T) {
	db, mock, cleanup := newAllocationRepoMock(t)
	defer cleanup()
	repo := NewDemandRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM demands WHERE semester_id = $1")).
		WithArgs("sem-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "semester_id", "course_code", "course_name", "section", "professor_names", "seat_count", "schedule_code", "created_at"}).
			AddRow("dem-1", "sem-1", "CS101", "Intro", "A", `{"Ada Lovelace","Alan Turing"}`, 40, "24M12", time.Now()))

	demands, err := repo.ListBySemester(context.Background(), "sem-1")
	require.NoError(t, err)
	require.Len(t, demands, 1)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, []string(demands[0].ProfessorNames))
	assert.Equal(t, "CS101-A", demands[0].Label())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newAllocationRepoMock(t)
	defer cleanup()
	repo := NewRoomRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "room_type_id", "room_type_code", "building_id", "characteristics"}).
			AddRow("room-1", "A-101", 40, "type-1", models.RoomTypeRegularClassroom, "bld-1", `{projector}`))

	rooms, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.True(t, rooms[0].IsClassroom())
	assert.True(t, rooms[0].HasCharacteristic("projector"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHardRuleRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newAllocationRepoMock(t)
	defer cleanup()
	repo := NewHardRuleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM hard_rules WHERE active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "course_code", "professor_name", "kind", "config"}).
			AddRow("rule-1", "Chem needs lab", "CHEM1", "", "ROOM_TYPE", `{"room_type_id":"type-lab"}`))

	records, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	rule, err := records[0].Parse()
	require.NoError(t, err)
	assert.Equal(t, models.RuleKindRoomType, rule.Requirement.Kind())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfessorRepositoriesListAll(t *testing.T) {
	db, mock, cleanup := newAllocationRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM professors ORDER BY name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("prof-1", "Ada Lovelace"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM professor_preferences")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "professor_name", "kind", "target"}).
			AddRow("pref-1", "Ada Lovelace", "ROOM", "room-1"))

	professors, err := NewProfessorRepository(db).ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, professors, 1)

	prefs, err := NewProfessorPreferenceRepository(db).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, models.PreferenceKindRoom, prefs[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
