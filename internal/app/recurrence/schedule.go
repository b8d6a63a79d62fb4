package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taskwire/taskwire/internal/events"
)

// ErrBadSchedule marks a recurrence descriptor that can never compute a
// next occurrence. Redelivery cannot fix it, so handlers ack and log.
var ErrBadSchedule = errors.New("malformed recurrence schedule")

// NextDue advances a due timestamp by one recurrence interval,
// preserving time-of-day. Monthly rollover clamps the day to the last
// day of the target month (Jan 31 -> Feb 28/29).
func NextDue(from time.Time, rule events.Recurrence) (time.Time, error) {
	switch rule.Frequency {
	case "daily":
		return from.AddDate(0, 0, 1), nil
	case "weekly":
		return from.AddDate(0, 0, 7), nil
	case "monthly":
		return addMonthsClamped(from, 1), nil
	case "custom":
		return nextFromExpression(from, rule.Expression)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown frequency %q", ErrBadSchedule, rule.Frequency)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	target := time.Date(year, month+time.Month(months), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	if last := lastDayOfMonth(target); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// Custom expressions have the compact form "every N days|weeks|months".
func nextFromExpression(from time.Time, expr string) (time.Time, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(expr)))
	if len(fields) != 3 || fields[0] != "every" {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadSchedule, expr)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadSchedule, expr)
	}
	switch strings.TrimSuffix(fields[2], "s") {
	case "day":
		return from.AddDate(0, 0, n), nil
	case "week":
		return from.AddDate(0, 0, 7*n), nil
	case "month":
		return addMonthsClamped(from, n), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadSchedule, expr)
	}
}
