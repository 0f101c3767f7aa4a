package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestHolidayCalendar(t *testing.T) {
	holidays, err := ParsePublicHolidays([]byte(`{"holidays":[
		{"date":"2026-01-01","name":"Neujahr"},
		{"date":"2026-01-06","name":"Heilige Drei Könige"}]}`))
	require.NoError(t, err)
	vacations, err := ParseSchoolVacations([]byte(`{"vacations":[
		{"start":"2026-02-16","end":"2026-02-20"}]}`))
	require.NoError(t, err)

	cal := NewHolidayCalendar(holidays, vacations)
	assert.Equal(t, 2, cal.HolidayCount())
	assert.Equal(t, 1, cal.VacationCount())

	t.Run("public holiday exact match", func(t *testing.T) {
		assert.True(t, cal.IsPublicHoliday(mustDate(t, "2026-01-06")))
		assert.False(t, cal.IsPublicHoliday(mustDate(t, "2026-01-07")))
	})

	t.Run("vacation inclusive of both ends", func(t *testing.T) {
		assert.False(t, cal.IsSchoolVacation(mustDate(t, "2026-02-15")))
		assert.True(t, cal.IsSchoolVacation(mustDate(t, "2026-02-16")))
		assert.True(t, cal.IsSchoolVacation(mustDate(t, "2026-02-18")))
		assert.True(t, cal.IsSchoolVacation(mustDate(t, "2026-02-20")))
		assert.False(t, cal.IsSchoolVacation(mustDate(t, "2026-02-21")))
	})

	t.Run("nil calendar is empty", func(t *testing.T) {
		var empty *HolidayCalendar
		assert.False(t, empty.IsPublicHoliday(mustDate(t, "2026-01-01")))
		assert.False(t, empty.IsSchoolVacation(mustDate(t, "2026-02-16")))
	})
}

func TestDateOf_UsesLocation(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	// 23:30 UTC on Dec 31 is already Jan 1 in Berlin.
	ts := time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2025-12-31", DateOf(ts).String())
	assert.Equal(t, "2026-01-01", DateOf(ts.In(berlin)).String())
}

func TestParsePublicHolidays_InvalidDate(t *testing.T) {
	_, err := ParsePublicHolidays([]byte(`{"holidays":[{"date":"01.01.2026","name":"x"}]}`))
	require.Error(t, err)
}
