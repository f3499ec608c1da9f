package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/room-allocation-api/internal/models"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

type semesterHistoryReader interface {
	ListWithAllocations(ctx context.Context) ([]models.Semester, error)
}

type allocationHistoryReader interface {
	ListHistoryBySemester(ctx context.Context, semesterID string) ([]models.HistoricalAllocation, error)
}

// HybridDetector finds courses that historically alternated between lab-like rooms and
// regular classrooms on different days of the week.
type HybridDetector struct {
	semesters semesterHistoryReader
	history   allocationHistoryReader
	logger    *zap.Logger

	mu          sync.RWMutex
	detected    bool
	semesterID  string
	disciplines map[string]models.HybridDisciplineInfo
	labRooms    map[string]map[int][]string
	roomUsage   map[string]int
}

// NewHybridDetector constructs a detector.
func NewHybridDetector(semesters semesterHistoryReader, history allocationHistoryReader, logger *zap.Logger) *HybridDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridDetector{
		semesters:   semesters,
		history:     history,
		logger:      logger,
		disciplines: make(map[string]models.HybridDisciplineInfo),
		labRooms:    make(map[string]map[int][]string),
		roomUsage:   make(map[string]int),
	}
}

// Detect selects the detection semester for the target and rebuilds the hybrid map from it.
// The detection semester is the most recent one with allocations other than the target,
// falling back to the most recent overall.
func (d *HybridDetector) Detect(ctx context.Context, targetSemesterID string) error {
	semesters, err := d.semesters.ListWithAllocations(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters with allocations")
	}

	detectionID := pickDetectionSemester(semesters, targetSemesterID)
	disciplines := make(map[string]models.HybridDisciplineInfo)
	labRooms := make(map[string]map[int][]string)
	usage := make(map[string]int)

	if detectionID != "" {
		records, err := d.history.ListHistoryBySemester(ctx, detectionID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load detection semester allocations")
		}
		for _, record := range records {
			usage[record.RoomID]++
		}
		disciplines, labRooms = classifyHybridCourses(records, detectionID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.detected = true
	d.semesterID = detectionID
	d.disciplines = disciplines
	d.labRooms = labRooms
	d.roomUsage = usage

	d.logger.Info("hybrid detection completed",
		zap.String("target_semester_id", targetSemesterID),
		zap.String("detection_semester_id", detectionID),
		zap.Int("hybrid_courses", len(disciplines)),
	)
	return nil
}

// pickDetectionSemester expects semesters ordered most recent first.
func pickDetectionSemester(semesters []models.Semester, targetSemesterID string) string {
	for _, semester := range semesters {
		if semester.ID != targetSemesterID {
			return semester.ID
		}
	}
	if len(semesters) > 0 {
		return semesters[0].ID
	}
	return ""
}

func classifyHybridCourses(records []models.HistoricalAllocation, detectionID string) (map[string]models.HybridDisciplineInfo, map[string]map[int][]string) {
	type courseUsage struct {
		rooms        map[string]bool
		nonClassroom bool
		labDays      map[int]bool
		usedDays     map[int]bool
		labRoomTypes map[string]bool
		labRooms     map[int]map[string]bool
	}

	byCourse := make(map[string]*courseUsage)
	for _, record := range records {
		course := courseKey(record.CourseCode)
		if course == "" {
			continue
		}
		usage, ok := byCourse[course]
		if !ok {
			usage = &courseUsage{
				rooms:        make(map[string]bool),
				labDays:      make(map[int]bool),
				usedDays:     make(map[int]bool),
				labRoomTypes: make(map[string]bool),
				labRooms:     make(map[int]map[string]bool),
			}
			byCourse[course] = usage
		}
		usage.rooms[record.RoomID] = true
		usage.usedDays[record.Day] = true
		if record.RoomTypeCode == models.RoomTypeRegularClassroom {
			continue
		}
		usage.nonClassroom = true
		usage.labDays[record.Day] = true
		usage.labRoomTypes[record.RoomTypeID] = true
		if usage.labRooms[record.Day] == nil {
			usage.labRooms[record.Day] = make(map[string]bool)
		}
		usage.labRooms[record.Day][record.RoomID] = true
	}

	disciplines := make(map[string]models.HybridDisciplineInfo)
	labRooms := make(map[string]map[int][]string)
	for course, usage := range byCourse {
		if len(usage.rooms) < 2 || !usage.nonClassroom {
			continue
		}
		info := models.HybridDisciplineInfo{
			CourseCode:          course,
			LabDays:             usage.labDays,
			ClassroomDays:       make(map[int]bool),
			LabRoomTypes:        usage.labRoomTypes,
			DetectionSemesterID: detectionID,
		}
		for day := range usage.usedDays {
			if !usage.labDays[day] {
				info.ClassroomDays[day] = true
			}
		}
		disciplines[course] = info

		perDay := make(map[int][]string, len(usage.labRooms))
		for day, rooms := range usage.labRooms {
			ids := make([]string, 0, len(rooms))
			for id := range rooms {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			perDay[day] = ids
		}
		labRooms[course] = perDay
	}
	return disciplines, labRooms
}

// Detected reports whether Detect has run.
func (d *HybridDetector) Detected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.detected
}

// DetectionSemesterID returns the semester the hybrid map was derived from.
func (d *HybridDetector) DetectionSemesterID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.semesterID
}

// courseKey is the form course codes are compared in.
func courseKey(code string) string {
	return strings.TrimSpace(code)
}

// IsHybrid reports whether the course was detected as hybrid.
func (d *HybridDetector) IsHybrid(courseCode string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.disciplines[courseKey(courseCode)]
	return ok
}

// IsLabDay reports whether the course historically used a lab-like room on the day.
func (d *HybridDetector) IsLabDay(courseCode string, day int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.disciplines[courseKey(courseCode)]
	return ok && info.LabDays[day]
}

// IsClassroomDay reports whether the course historically used only classrooms on the day.
func (d *HybridDetector) IsClassroomDay(courseCode string, day int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.disciplines[courseKey(courseCode)]
	return ok && info.ClassroomDays[day]
}

// HistoricalLabRooms lists the lab-like rooms the course used on the day.
func (d *HybridDetector) HistoricalLabRooms(courseCode string, day int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rooms := d.labRooms[courseKey(courseCode)][day]
	out := make([]string, len(rooms))
	copy(out, rooms)
	return out
}

// UsesLabRoomType reports whether the course used the room type on any lab day.
func (d *HybridDetector) UsesLabRoomType(courseCode, roomTypeID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.disciplines[courseKey(courseCode)]
	return ok && info.LabRoomTypes[roomTypeID]
}

// Info returns the hybrid record for the course.
func (d *HybridDetector) Info(courseCode string) (models.HybridDisciplineInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.disciplines[courseKey(courseCode)]
	return info, ok
}

// Courses lists the hybrid course codes in order.
func (d *HybridDetector) Courses() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	courses := make([]string, 0, len(d.disciplines))
	for course := range d.disciplines {
		courses = append(courses, course)
	}
	sort.Strings(courses)
	return courses
}

// RoomUsage returns how many rows each room carried in the detection semester.
func (d *HybridDetector) RoomUsage(roomID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roomUsage[roomID]
}
