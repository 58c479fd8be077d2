// Package window enforces ingestion execution time windows and generates
// window keys.
//
// Daily methods run inside a configured local-time interval; monthly methods
// run only on configured days of the month (plus the full day after each, the
// grace day). The window key is the local date of the run and, together with
// the method name, is the idempotency discriminator for runs.
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sipsa-io/sipsa/internal/config"
)

// Sentinel errors for window validation.
var (
	// ErrWindowViolation indicates a non-forced run attempted outside its window.
	ErrWindowViolation = errors.New("run outside allowed window")

	// ErrInvalidTimeOfDay indicates a time-of-day string that is not HH:MM.
	ErrInvalidTimeOfDay = errors.New("invalid time of day, expected HH:MM")

	// ErrInvalidConfig indicates static window configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid window configuration")
)

const (
	dateKeyFormat   = "2006-01-02"
	minutesPerHour  = 60
	maxDayOfMonth   = 31
	timeOfDayFields = 2
)

type (
	// TimeOfDay is a wall-clock time without a date, minute resolution.
	TimeOfDay struct {
		Hour   int
		Minute int
	}

	// Config holds the static window policy settings.
	Config struct {
		DailyStart     TimeOfDay
		DailyEnd       TimeOfDay
		MonthlyRunDays []int
		MonthlyStart   TimeOfDay
		Location       *time.Location
	}

	// Policy validates execution moments against the configured windows and
	// produces stable window keys. Policy is pure: the caller injects now.
	Policy struct {
		dailyStart   int // minutes of day
		dailyEnd     int
		monthlyStart int
		runDays      map[int]bool
		loc          *time.Location
	}

	// ViolationError describes a rejected execution moment.
	ViolationError struct {
		Method string
		Reason string
	}
)

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("window violation for %s: %s", e.Method, e.Reason)
}

// Unwrap allows errors.Is(err, ErrWindowViolation).
func (e *ViolationError) Unwrap() error {
	return ErrWindowViolation
}

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != timeOfDayFields {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	var tod TimeOfDay

	if _, err := fmt.Sscanf(s, "%d:%d", &tod.Hour, &tod.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	return tod, nil
}

// Minutes returns the time of day as minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*minutesPerHour + t.Minute
}

// String returns the HH:MM form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// LoadConfig loads window configuration from environment variables with the
// documented defaults (daily 14:20-23:59, monthly days 8 and 10 from 06:00,
// America/Bogota).
func LoadConfig() (*Config, error) {
	dailyStart, err := ParseTimeOfDay(config.GetEnvStr("SIPSA_DAILY_WINDOW_START", "14:20"))
	if err != nil {
		return nil, err
	}

	dailyEnd, err := ParseTimeOfDay(config.GetEnvStr("SIPSA_DAILY_WINDOW_END", "23:59"))
	if err != nil {
		return nil, err
	}

	monthlyStart, err := ParseTimeOfDay(config.GetEnvStr("SIPSA_MONTHLY_WINDOW_START", "06:00"))
	if err != nil {
		return nil, err
	}

	zone := config.GetEnvStr("SIPSA_TIMEZONE", "America/Bogota")

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown time zone %q", ErrInvalidConfig, zone)
	}

	cfg := &Config{
		DailyStart:     dailyStart,
		DailyEnd:       dailyEnd,
		MonthlyRunDays: config.GetEnvIntSlice("SIPSA_MONTHLY_RUN_DAYS", []int{8, 10}),
		MonthlyStart:   monthlyStart,
		Location:       loc,
	}

	return cfg, cfg.Validate()
}

// Validate checks the window configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Location == nil {
		return fmt.Errorf("%w: missing time zone", ErrInvalidConfig)
	}

	if c.DailyStart.Minutes() > c.DailyEnd.Minutes() {
		return fmt.Errorf("%w: daily window start %s after end %s",
			ErrInvalidConfig, c.DailyStart, c.DailyEnd)
	}

	if len(c.MonthlyRunDays) == 0 {
		return fmt.Errorf("%w: no monthly run days", ErrInvalidConfig)
	}

	for _, day := range c.MonthlyRunDays {
		if day < 1 || day > maxDayOfMonth {
			return fmt.Errorf("%w: monthly run day %d out of range", ErrInvalidConfig, day)
		}
	}

	return nil
}

// NewPolicy creates a window policy from validated configuration.
func NewPolicy(cfg *Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runDays := make(map[int]bool, len(cfg.MonthlyRunDays))
	for _, day := range cfg.MonthlyRunDays {
		runDays[day] = true
	}

	return &Policy{
		dailyStart:   cfg.DailyStart.Minutes(),
		dailyEnd:     cfg.DailyEnd.Minutes(),
		monthlyStart: cfg.MonthlyStart.Minutes(),
		runDays:      runDays,
		loc:          cfg.Location,
	}, nil
}

// ValidateAndKey validates now against the method's window and returns the
// window key for the current logical execution period.
//
// The key is the local date (YYYY-MM-DD) regardless of method class, so
// retries within a legal execution region collide on the (method, windowKey)
// uniqueness. force bypasses validation but still returns the computed key.
func (p *Policy) ValidateAndKey(methodName string, force bool, now time.Time) (string, error) {
	local := now.In(p.loc)
	key := local.Format(dateKeyFormat)

	if force {
		return key, nil
	}

	minute := local.Hour()*minutesPerHour + local.Minute()

	if IsMonthlyMethod(methodName) {
		return key, p.validateMonthly(methodName, local.Day(), minute)
	}

	return key, p.validateDaily(methodName, minute)
}

func (p *Policy) validateDaily(methodName string, minute int) error {
	if minute < p.dailyStart || minute > p.dailyEnd {
		return &ViolationError{
			Method: methodName,
			Reason: fmt.Sprintf("daily run outside window %02d:%02d-%02d:%02d",
				p.dailyStart/minutesPerHour, p.dailyStart%minutesPerHour,
				p.dailyEnd/minutesPerHour, p.dailyEnd%minutesPerHour),
		}
	}

	return nil
}

func (p *Policy) validateMonthly(methodName string, day, minute int) error {
	// Scheduled day, at or after the monthly start time.
	if p.runDays[day] && minute >= p.monthlyStart {
		return nil
	}

	// Grace day: the whole day after a scheduled day.
	if p.runDays[day-1] {
		return nil
	}

	return &ViolationError{
		Method: methodName,
		Reason: fmt.Sprintf("monthly run outside window, day %d", day),
	}
}

// IsMonthlyMethod reports whether a method is classified monthly.
// Methods whose names contain "mesmadr" or "abas" (case-insensitive) are
// monthly; all others are daily.
func IsMonthlyMethod(methodName string) bool {
	lower := strings.ToLower(methodName)

	return strings.Contains(lower, "mesmadr") || strings.Contains(lower, "abas")
}
