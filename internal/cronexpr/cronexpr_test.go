package cronexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsOutOfRangeSecond(t *testing.T) {
	errs := Validate("60 * * * * *")
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "second")
}

func TestValidateAcceptsStepAndRangeExpression(t *testing.T) {
	assert.Empty(t, Validate("0 */15 9-17 * * 1-5"))
}

func TestValidateRejectsBothSidesQuestionMark(t *testing.T) {
	errs := Validate("0 0 0 ? * ?")
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsReversedRange(t *testing.T) {
	errs := Validate("0 0 17-9 * * *")
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsZeroStep(t *testing.T) {
	errs := Validate("0 */0 * * * *")
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsNonNumericField(t *testing.T) {
	errs := Validate("0 abc * * * *")
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsWrongFieldCount(t *testing.T) {
	errs := Validate("* * * *")
	assert.NotEmpty(t, errs)
}

func TestNextFireAdvancesStrictlyAfterGivenInstant(t *testing.T) {
	sched, err := Parse("0 0 9 * * 1-5") // 09:00:00 on weekdays
	require.NoError(t, err)

	start := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC) // Friday
	next := sched.NextFire(start, time.UTC)

	assert.True(t, next.After(start))
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 0, next.Second())
}

func TestNextFireSkipsWeekend(t *testing.T) {
	sched, err := Parse("0 0 9 * * 1-5")
	require.NoError(t, err)

	friday9am := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	next := sched.NextFire(friday9am, time.UTC)

	assert.Equal(t, time.Monday, next.Weekday())
}

func TestNextFireHonorsQuestionMarkOnDayOfMonth(t *testing.T) {
	sched, err := Parse("0 30 14 ? * 1")
	require.NoError(t, err)

	start := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) // Friday
	next := sched.NextFire(start, time.UTC)

	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 14, next.Hour())
	assert.Equal(t, 30, next.Minute())
}
