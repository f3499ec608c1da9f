package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/room-allocation-api/internal/models"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

var (
	scheduleTokenPattern = regexp.MustCompile(`^([2-7]{1,5})([MTN])([1-7]{1,7})$`)
	scheduleTokenShape   = regexp.MustCompile(`^([0-9]+)([A-Za-z])([0-9]+)$`)
)

const maxDaysPerToken = 5

// MalformedScheduleError describes why a schedule code could not be decoded.
type MalformedScheduleError struct {
	Code   string
	Token  string
	Reason string
}

// Error implements the error interface.
func (e *MalformedScheduleError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("malformed schedule code %q: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("malformed schedule code %q: token %q %s", e.Code, e.Token, e.Reason)
}

// Unwrap exposes the taxonomy sentinel.
func (e *MalformedScheduleError) Unwrap() error {
	return appErrors.ErrMalformedSchedule
}

// DecodeSchedule expands a weekly schedule code into its sorted set of atomic blocks.
func DecodeSchedule(code string) ([]models.AtomicBlock, error) {
	tokens := strings.Fields(code)
	if len(tokens) == 0 {
		return nil, &MalformedScheduleError{Code: code, Reason: "contains no schedule tokens"}
	}

	seen := make(map[models.AtomicBlock]struct{})
	for _, token := range tokens {
		match := scheduleTokenPattern.FindStringSubmatch(token)
		if match == nil {
			return nil, &MalformedScheduleError{Code: code, Token: token, Reason: diagnoseScheduleToken(token)}
		}
		shift := models.Shift(match[2])
		for _, d := range match[1] {
			for _, s := range match[3] {
				block := models.AtomicBlock{Day: int(d - '0'), Shift: shift, Slot: int(s - '0')}
				seen[block] = struct{}{}
			}
		}
	}

	blocks := make([]models.AtomicBlock, 0, len(seen))
	for block := range seen {
		blocks = append(blocks, block)
	}
	sortBlocks(blocks)
	return blocks, nil
}

func diagnoseScheduleToken(token string) string {
	parts := scheduleTokenShape.FindStringSubmatch(token)
	if parts == nil {
		return "contains unexpected characters"
	}
	days, shift, slots := parts[1], parts[2], parts[3]
	for _, d := range days {
		if d < '0'+models.MinDay || d > '0'+models.MaxDay {
			return fmt.Sprintf("has day %c outside %d-%d", d, models.MinDay, models.MaxDay)
		}
	}
	if !models.Shift(shift).Valid() {
		return fmt.Sprintf("has invalid shift letter %q", shift)
	}
	for _, s := range slots {
		if s < '0'+models.MinSlot || s > '0'+models.MaxSlot {
			return fmt.Sprintf("has slot %c outside %d-%d", s, models.MinSlot, models.MaxSlot)
		}
	}
	if len(days) > maxDaysPerToken {
		return fmt.Sprintf("lists more than %d days", maxDaysPerToken)
	}
	return fmt.Sprintf("lists more than %d slots", models.MaxSlot)
}

type scheduleRun struct {
	shift models.Shift
	slots string
	days  []int
}

// EncodeSchedule renders blocks back into a compact schedule code, merging consecutive
// slots per day and shift and then days sharing the same run.
func EncodeSchedule(blocks []models.AtomicBlock) string {
	if len(blocks) == 0 {
		return ""
	}
	sorted := uniqueBlocks(blocks)

	type dayShift struct {
		day   int
		shift models.Shift
	}
	slotsByDay := make(map[dayShift][]int)
	var order []dayShift
	for _, block := range sorted {
		key := dayShift{day: block.Day, shift: block.Shift}
		if _, ok := slotsByDay[key]; !ok {
			order = append(order, key)
		}
		slotsByDay[key] = append(slotsByDay[key], block.Slot)
	}

	runs := make(map[string]*scheduleRun)
	var runOrder []string
	for _, key := range order {
		for _, slotRun := range consecutiveRuns(slotsByDay[key]) {
			digits := joinDigits(slotRun)
			id := string(key.shift) + digits
			run, ok := runs[id]
			if !ok {
				run = &scheduleRun{shift: key.shift, slots: digits}
				runs[id] = run
				runOrder = append(runOrder, id)
			}
			run.days = append(run.days, key.day)
		}
	}

	var tokens []scheduleRun
	for _, id := range runOrder {
		run := runs[id]
		for start := 0; start < len(run.days); start += maxDaysPerToken {
			end := start + maxDaysPerToken
			if end > len(run.days) {
				end = len(run.days)
			}
			tokens = append(tokens, scheduleRun{shift: run.shift, slots: run.slots, days: run.days[start:end]})
		}
	}
	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].days[0] != tokens[j].days[0] {
			return tokens[i].days[0] < tokens[j].days[0]
		}
		if tokens[i].shift != tokens[j].shift {
			return tokens[i].shift.Order() < tokens[j].shift.Order()
		}
		return tokens[i].slots < tokens[j].slots
	})

	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, joinDigits(token.days)+string(token.shift)+token.slots)
	}
	return strings.Join(out, " ")
}

// GroupByDay splits blocks into one BlockGroup per distinct day, ordered by day.
func GroupByDay(blocks []models.AtomicBlock) []models.BlockGroup {
	sorted := uniqueBlocks(blocks)
	var groups []models.BlockGroup
	for _, block := range sorted {
		if len(groups) == 0 || groups[len(groups)-1].Day != block.Day {
			groups = append(groups, models.BlockGroup{Day: block.Day})
		}
		last := &groups[len(groups)-1]
		last.Blocks = append(last.Blocks, block)
	}
	return groups
}

var slotClock = map[string][2]string{
	"M1": {"08:00", "08:55"},
	"M2": {"08:55", "09:50"},
	"M3": {"10:00", "10:55"},
	"M4": {"10:55", "11:50"},
	"M5": {"11:50", "12:45"},
	"T1": {"13:30", "14:25"},
	"T2": {"14:25", "15:20"},
	"T3": {"15:30", "16:25"},
	"T4": {"16:25", "17:20"},
	"T5": {"17:20", "18:15"},
	"T6": {"18:15", "19:10"},
	"N1": {"19:00", "19:50"},
	"N2": {"19:50", "20:40"},
	"N3": {"20:50", "21:40"},
	"N4": {"21:40", "22:30"},
}

var dayAbbreviation = map[int]string{
	2: "Mon",
	3: "Tue",
	4: "Wed",
	5: "Thu",
	6: "Fri",
	7: "Sat",
}

// HumanReadableSchedule maps each run of a schedule code to clock-time ranges.
// Tokens or slots without a known clock time are passed through verbatim.
func HumanReadableSchedule(code string) string {
	var parts []string
	for _, token := range strings.Fields(code) {
		match := scheduleTokenPattern.FindStringSubmatch(token)
		if match == nil {
			parts = append(parts, token)
			continue
		}

		var days []string
		seenDay := make(map[rune]bool)
		for _, d := range match[1] {
			if seenDay[d] {
				continue
			}
			seenDay[d] = true
			days = append(days, dayAbbreviation[int(d-'0')])
		}

		slotSet := make(map[int]bool)
		for _, s := range match[3] {
			slotSet[int(s-'0')] = true
		}
		slots := make([]int, 0, len(slotSet))
		for slot := range slotSet {
			slots = append(slots, slot)
		}
		sort.Ints(slots)

		var ranges []string
		for _, run := range consecutiveRuns(slots) {
			first, okFirst := slotClock[match[2]+strconv.Itoa(run[0])]
			last, okLast := slotClock[match[2]+strconv.Itoa(run[len(run)-1])]
			if !okFirst || !okLast {
				ranges = append(ranges, match[2]+joinDigits(run))
				continue
			}
			ranges = append(ranges, first[0]+"-"+last[1])
		}
		parts = append(parts, strings.Join(days, "/")+" "+strings.Join(ranges, ", "))
	}
	return strings.Join(parts, "; ")
}

func uniqueBlocks(blocks []models.AtomicBlock) []models.AtomicBlock {
	seen := make(map[models.AtomicBlock]struct{}, len(blocks))
	out := make([]models.AtomicBlock, 0, len(blocks))
	for _, block := range blocks {
		if _, ok := seen[block]; ok {
			continue
		}
		seen[block] = struct{}{}
		out = append(out, block)
	}
	sortBlocks(out)
	return out
}

func sortBlocks(blocks []models.AtomicBlock) {
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Less(blocks[j]) })
}

// consecutiveRuns splits sorted ints into maximal runs of consecutive values.
func consecutiveRuns(values []int) [][]int {
	var runs [][]int
	for _, v := range values {
		if n := len(runs); n > 0 {
			last := runs[n-1]
			if last[len(last)-1]+1 == v {
				runs[n-1] = append(last, v)
				continue
			}
		}
		runs = append(runs, []int{v})
	}
	return runs
}

func joinDigits(values []int) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}
