package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron expression errors
var (
	ErrCronRequired = errors.New("cron expression is required")
	ErrCronTimezone = errors.New("cron expression must be UTC-only (timezone prefixes are not allowed)")
)

// cronParser accepts the standard five fields (minute, hour, day of month,
// month, day of week) and descriptors such as "@hourly" or "@every 10m".
var cronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// NextCronRun returns the first activation of expr strictly after now, in UTC.
func NextCronRun(expr string, now time.Time) (time.Time, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.UTC()).UTC(), nil
}

// ParseCron parses expr as a schedule evaluated in UTC.
func ParseCron(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, ErrCronRequired
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, ErrCronTimezone
	}

	schedule, err := cronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	if spec, ok := schedule.(*cron.SpecSchedule); ok {
		spec.Location = time.UTC
	}
	return schedule, nil
}
