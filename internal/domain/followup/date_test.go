package followup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay_KeepsLocalCalendarDate(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	late := time.Date(2024, time.March, 5, 23, 30, 0, 0, ist)

	got := Day(late)
	assert.Equal(t, Date(2024, time.March, 5), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date(2024, time.February, 29), d)

	_, err = ParseDate("2024-02-30")
	assert.Error(t, err)
	_, err = ParseDate("05/03/2024")
	assert.Error(t, err)
}

func TestAddDaysAndDaysBetween(t *testing.T) {
	lmp := Date(2024, time.January, 1)

	assert.Equal(t, Date(2024, time.September, 9), AddDays(lmp, 36*7))
	assert.Equal(t, Date(2023, time.December, 25), AddDays(lmp, -7))
	assert.Equal(t, 252, DaysBetween(lmp, Date(2024, time.September, 9)))
	assert.Equal(t, -7, DaysBetween(lmp, Date(2023, time.December, 25)))
}

func TestDaysBetween_BeyondDurationRange(t *testing.T) {
	lmp := Date(2, time.January, 1)
	far := AddDays(lmp, 400*365)

	assert.Equal(t, 400*365, DaysBetween(lmp, far))
	assert.Equal(t, -400*365, DaysBetween(far, lmp))
	assert.Equal(t, 400*365/7, GestationalWeeks(lmp, far))
}

func TestGestationalAge(t *testing.T) {
	lmp := Date(2024, time.January, 1)

	assert.Equal(t, 0, GestationalWeeks(lmp, AddDays(lmp, -3)))
	assert.Equal(t, 17, GestationalWeeks(lmp, Date(2024, time.May, 1)))

	tests := []struct {
		days int
		want int
	}{
		{0, 1},
		{13*7 + 6, 1},
		{14 * 7, 2},
		{27*7 + 6, 2},
		{28 * 7, 3},
		{40 * 7, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Trimester(lmp, AddDays(lmp, tt.days)), "day %d", tt.days)
	}
}

func TestEstimatedDueDate(t *testing.T) {
	assert.Equal(t, Date(2024, time.October, 7), EstimatedDueDate(Date(2024, time.January, 1)))

	usg := Date(2024, time.October, 1)
	f := ANCFields{LMP: Date(2024, time.January, 1), USGEDD: &usg}
	assert.Equal(t, usg, f.EffectiveEDD())
}
