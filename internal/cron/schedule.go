package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/chatagent/pkg/models"
)

// ErrInvalidTrigger is returned for a trigger that does not describe exactly
// one of a future time, a non-negative delay or a valid cron expression.
var ErrInvalidTrigger = errors.New("invalid trigger")

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ValidateTrigger checks a trigger against now.
func ValidateTrigger(t models.Trigger, now time.Time) error {
	switch t.Kind {
	case models.TriggerAt:
		if t.DelaySeconds != 0 || t.Cron != "" {
			return fmt.Errorf("%w: at trigger with extra fields", ErrInvalidTrigger)
		}
		if t.At.IsZero() {
			return fmt.Errorf("%w: at trigger missing timestamp", ErrInvalidTrigger)
		}
		if !t.At.After(now) {
			return fmt.Errorf("%w: %s is not in the future", ErrInvalidTrigger, t.At.UTC().Format(time.RFC3339))
		}
	case models.TriggerAfter:
		if !t.At.IsZero() || t.Cron != "" {
			return fmt.Errorf("%w: delay trigger with extra fields", ErrInvalidTrigger)
		}
		if t.DelaySeconds < 0 {
			return fmt.Errorf("%w: negative delay %d", ErrInvalidTrigger, t.DelaySeconds)
		}
	case models.TriggerCron:
		if !t.At.IsZero() || t.DelaySeconds != 0 {
			return fmt.Errorf("%w: cron trigger with extra fields", ErrInvalidTrigger)
		}
		if strings.TrimSpace(t.Cron) == "" {
			return fmt.Errorf("%w: cron trigger missing expression", ErrInvalidTrigger)
		}
		if _, err := cronParser.Parse(strings.TrimSpace(t.Cron)); err != nil {
			return fmt.Errorf("%w: invalid cron expression: %v", ErrInvalidTrigger, err)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
	return nil
}

// NextRun returns the first firing time of a trigger at or after now.
func NextRun(t models.Trigger, now time.Time) (time.Time, error) {
	switch t.Kind {
	case models.TriggerAt:
		return t.At, nil
	case models.TriggerAfter:
		return now.Add(time.Duration(t.DelaySeconds) * time.Second), nil
	case models.TriggerCron:
		schedule, err := cronParser.Parse(strings.TrimSpace(t.Cron))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		next := schedule.Next(now)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("%w: cron expression never fires", ErrInvalidTrigger)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
}

// ParseTime parses an absolute time as written by a model or a user.
// It accepts RFC 3339 (with or without a zone, UTC assumed), a bare date,
// "2006-01-02 15:04", and Unix timestamps in seconds or milliseconds.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidTrigger)
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidTrigger, raw)
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrInvalidTrigger, raw)
}
