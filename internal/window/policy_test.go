package window

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(t *testing.T) *Policy {
	t.Helper()

	policy, err := NewPolicy(&Config{
		DailyStart:     TimeOfDay{Hour: 14, Minute: 20},
		DailyEnd:       TimeOfDay{Hour: 23, Minute: 59},
		MonthlyRunDays: []int{8, 10},
		MonthlyStart:   TimeOfDay{Hour: 6, Minute: 0},
		Location:       time.UTC,
	})
	require.NoError(t, err)

	return policy
}

func at(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := time.ParseInLocation("2006-01-02 15:04", value, time.UTC)
	require.NoError(t, err)

	return parsed
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("14:20")
	require.NoError(t, err)
	assert.Equal(t, 14*60+20, tod.Minutes())
	assert.Equal(t, "14:20", tod.String())

	for _, bad := range []string{"", "14", "25:00", "10:75", "ab:cd"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, "input %q", bad)
	}
}

func TestIsMonthlyMethod(t *testing.T) {
	assert.True(t, IsMonthlyMethod("promediosSipsaMesMadr"))
	assert.True(t, IsMonthlyMethod("promedioAbasSipsaMesMadr"))
	assert.False(t, IsMonthlyMethod("promediosSipsaCiudad"))
	assert.False(t, IsMonthlyMethod("promediosSipsaParcial"))
	assert.False(t, IsMonthlyMethod("promediosSipsaSemanaMadr"))
}

func TestDailyWindowInside(t *testing.T) {
	policy := testPolicy(t)

	key, err := policy.ValidateAndKey("promediosSipsaCiudad", false, at(t, "2026-01-02 14:25"))
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02", key)
}

func TestDailyWindowBoundaries(t *testing.T) {
	policy := testPolicy(t)

	_, err := policy.ValidateAndKey("promediosSipsaCiudad", false, at(t, "2026-01-02 14:20"))
	assert.NoError(t, err, "start boundary is inclusive")

	_, err = policy.ValidateAndKey("promediosSipsaCiudad", false, at(t, "2026-01-02 23:59"))
	assert.NoError(t, err, "end boundary is inclusive")

	_, err = policy.ValidateAndKey("promediosSipsaCiudad", false, at(t, "2026-01-02 14:19"))
	assert.ErrorIs(t, err, ErrWindowViolation)
}

func TestDailyWindowOutsideNotForced(t *testing.T) {
	policy := testPolicy(t)

	_, err := policy.ValidateAndKey("promediosSipsaCiudad", false, at(t, "2026-01-02 09:00"))
	require.ErrorIs(t, err, ErrWindowViolation)

	var violation *ViolationError

	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "promediosSipsaCiudad", violation.Method)
}

func TestDailyWindowOutsideForced(t *testing.T) {
	policy := testPolicy(t)

	key, err := policy.ValidateAndKey("promediosSipsaCiudad", true, at(t, "2026-01-02 09:00"))
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02", key)
}

func TestMonthlyRunDay(t *testing.T) {
	policy := testPolicy(t)

	key, err := policy.ValidateAndKey("promediosSipsaMesMadr", false, at(t, "2026-02-08 06:00"))
	require.NoError(t, err)
	assert.Equal(t, "2026-02-08", key)

	_, err = policy.ValidateAndKey("promediosSipsaMesMadr", false, at(t, "2026-02-08 05:59"))
	assert.ErrorIs(t, err, ErrWindowViolation, "before monthly start on the run day")
}

func TestMonthlyGraceDay(t *testing.T) {
	policy := testPolicy(t)

	// The whole day after a scheduled day is valid, even before monthlyStart.
	key, err := policy.ValidateAndKey("promediosSipsaMesMadr", false, at(t, "2026-02-09 01:00"))
	require.NoError(t, err)
	assert.Equal(t, "2026-02-09", key)

	key, err = policy.ValidateAndKey("promedioAbasSipsaMesMadr", false, at(t, "2026-02-11 23:30"))
	require.NoError(t, err)
	assert.Equal(t, "2026-02-11", key)
}

func TestMonthlyOutsideWindow(t *testing.T) {
	policy := testPolicy(t)

	_, err := policy.ValidateAndKey("promedioAbasSipsaMesMadr", false, at(t, "2026-02-05 06:00"))
	assert.ErrorIs(t, err, ErrWindowViolation)

	_, err = policy.ValidateAndKey("promedioAbasSipsaMesMadr", false, at(t, "2026-02-12 06:00"))
	assert.ErrorIs(t, err, ErrWindowViolation, "two days after a run day")
}

func TestWindowKeyStable(t *testing.T) {
	policy := testPolicy(t)

	first, err := policy.ValidateAndKey("promediosSipsaCiudad", false, at(t, "2026-01-02 14:25"))
	require.NoError(t, err)

	second, err := policy.ValidateAndKey("promediosSipsaCiudad", false, at(t, "2026-01-02 18:40"))
	require.NoError(t, err)

	assert.Equal(t, first, second, "same local date yields the same key")
}

func TestWindowKeyUsesConfiguredZone(t *testing.T) {
	bogota, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	policy, err := NewPolicy(&Config{
		DailyStart:     TimeOfDay{Hour: 0, Minute: 0},
		DailyEnd:       TimeOfDay{Hour: 23, Minute: 59},
		MonthlyRunDays: []int{8},
		MonthlyStart:   TimeOfDay{Hour: 6, Minute: 0},
		Location:       bogota,
	})
	require.NoError(t, err)

	// 03:00 UTC on Jan 3 is still Jan 2 in Bogota (UTC-5).
	key, err := policy.ValidateAndKey("promediosSipsaCiudad", false,
		time.Date(2026, 1, 3, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02", key)
}

func TestConfigValidate(t *testing.T) {
	bad := &Config{
		DailyStart:     TimeOfDay{Hour: 23, Minute: 0},
		DailyEnd:       TimeOfDay{Hour: 14, Minute: 0},
		MonthlyRunDays: []int{8},
		MonthlyStart:   TimeOfDay{Hour: 6, Minute: 0},
		Location:       time.UTC,
	}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = &Config{
		DailyStart:     TimeOfDay{Hour: 14, Minute: 0},
		DailyEnd:       TimeOfDay{Hour: 23, Minute: 0},
		MonthlyRunDays: []int{0, 32},
		MonthlyStart:   TimeOfDay{Hour: 6, Minute: 0},
		Location:       time.UTC,
	}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = &Config{
		DailyStart:     TimeOfDay{Hour: 14, Minute: 0},
		DailyEnd:       TimeOfDay{Hour: 23, Minute: 0},
		MonthlyStart:   TimeOfDay{Hour: 6, Minute: 0},
		Location:       time.UTC,
	}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig, "empty monthly run days")
}
