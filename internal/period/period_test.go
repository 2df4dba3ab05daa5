package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMonthsWrapsYears(t *testing.T) {
	assert.Equal(t, New(2026, 1), New(2025, 12).AddMonths(1))
	assert.Equal(t, New(2025, 8), New(2026, 1).AddMonths(-5))
	assert.Equal(t, New(2024, 12), New(2026, 1).AddMonths(-13))
}

func TestOrdering(t *testing.T) {
	assert.True(t, New(2025, 12).Before(New(2026, 1)))
	assert.True(t, New(2026, 2).After(New(2026, 1)))
	assert.False(t, New(2026, 1).Before(New(2026, 1)))
}

func TestParse(t *testing.T) {
	p, err := Parse("2026-01")
	require.NoError(t, err)
	assert.Equal(t, New(2026, 1), p)
	assert.Equal(t, "2026-01", p.String())
	assert.Equal(t, "January 2026", p.Label())

	for _, bad := range []string{"2026", "2026-13", "abcd-01", "2026-xx"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestRangeAndOf(t *testing.T) {
	r := Range(New(2025, 11), New(2026, 2))
	assert.Equal(t, []Period{New(2025, 11), New(2025, 12), New(2026, 1), New(2026, 2)}, r)
	assert.Empty(t, Range(New(2026, 2), New(2026, 1)))

	assert.Equal(t, New(2026, 3), Of(time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)))
}
