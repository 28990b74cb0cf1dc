package groups

import (
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule indicates a meeting schedule that is not a valid cron
// specification.
var ErrInvalidSchedule = errors.New("groups: invalid meeting schedule")

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a cron-style meeting schedule. The empty string is
// valid and means the group has no recurring meeting.
func ValidateSchedule(spec string) error {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return nil
	}
	if _, err := scheduleParser.Parse(trimmed); err != nil {
		return ErrInvalidSchedule
	}
	return nil
}

// NextMeetings computes the next count meeting times after the given instant.
// Groups without a schedule yield no occurrences.
func NextMeetings(spec string, after time.Time, count int) []time.Time {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" || count <= 0 {
		return nil
	}
	schedule, err := scheduleParser.Parse(trimmed)
	if err != nil {
		return nil
	}
	occurrences := make([]time.Time, 0, count)
	next := after
	for i := 0; i < count; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		occurrences = append(occurrences, next)
	}
	return occurrences
}
