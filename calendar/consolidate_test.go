package calendar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/ot"
)

func day(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

func code(s string) *string { return &s }

func holiday(id string, d time.Time, desc, state string) calendar.EventItem {
	return calendar.EventItem{ID: id, Date: d, Description: desc, Origin: calendar.OriginHoliday, StateCode: code(state)}
}

// =============================================================================
// CONSOLIDATION
// =============================================================================

func TestConsolidate_UnionsStates(t *testing.T) {
	// GIVEN: the same holiday published for SGR and JHR
	// THEN: one row scoped to both, canonical code MULTI
	in := []calendar.EventItem{
		holiday("h-1", day(time.March, 31), "Hari Raya Aidilfitri", "SGR"),
		holiday("h-2", day(time.March, 31), "Hari Raya Aidilfitri", "JHR"),
	}

	out, err := calendar.Consolidate(in)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, []string{"JHR", "SGR"}, out[0].StateCodes)
	require.NotNil(t, out[0].StateCode)
	assert.Equal(t, calendar.ScopeMulti, *out[0].StateCode)
	assert.NotEqual(t, "h-1", out[0].ID)
	assert.NotEqual(t, "h-2", out[0].ID)
}

func TestConsolidate_AllWins(t *testing.T) {
	in := []calendar.EventItem{
		holiday("h-1", day(time.May, 1), "Labour Day", "SGR"),
		holiday("h-2", day(time.May, 1), "Labour Day", "ALL"),
		holiday("h-3", day(time.May, 1), "Labour Day", "KUL"),
	}

	out, err := calendar.Consolidate(in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, calendar.ScopeAll, *out[0].StateCode)
	assert.Equal(t, []string{"ALL", "KUL", "SGR"}, out[0].StateCodes)
}

func TestConsolidate_SingleDistinctCode(t *testing.T) {
	in := []calendar.EventItem{
		holiday("h-1", day(time.June, 2), "Agong's Birthday", "SGR"),
		holiday("h-2", day(time.June, 2), "Agong's Birthday", "SGR"),
	}

	out, err := calendar.Consolidate(in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "SGR", *out[0].StateCode)
	assert.Equal(t, []string{"SGR"}, out[0].StateCodes)
}

func TestConsolidate_FlagsAndHolidayType(t *testing.T) {
	a := holiday("h-1", day(time.March, 31), "Hari Raya", "SGR")
	b := holiday("h-2", day(time.March, 31), "Hari Raya", "JHR")
	b.IsReplacement = true
	b.HolidayType = code("religious")
	c := holiday("h-3", day(time.March, 31), "Hari Raya", "KDH")
	c.IsHRModified = true
	c.HolidayType = code("federal")

	out, err := calendar.Consolidate([]calendar.EventItem{a, b, c})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsReplacement)
	assert.True(t, out[0].IsHRModified)
	require.NotNil(t, out[0].HolidayType)
	assert.Equal(t, "religious", *out[0].HolidayType)
}

func TestConsolidate_LeaveNeverMerged(t *testing.T) {
	// GIVEN: two leave rows and a holiday on the same date with the same description
	// THEN: the leave rows pass through untouched
	leave1 := calendar.EventItem{ID: "l-1", Date: day(time.April, 1), Description: "Annual leave", Origin: calendar.OriginLeave, EmployeeID: "emp-1"}
	leave2 := calendar.EventItem{ID: "l-2", Date: day(time.April, 1), Description: "Annual leave", Origin: calendar.OriginLeave, EmployeeID: "emp-2", StateCode: code("SGR")}
	h := holiday("h-1", day(time.April, 1), "Annual leave", "SGR")

	out, err := calendar.Consolidate([]calendar.EventItem{leave1, leave2, h})
	require.NoError(t, err)
	require.Len(t, out, 3)

	byID := map[string]calendar.EventItem{}
	for _, ev := range out {
		byID[ev.ID] = ev
	}
	assert.Equal(t, []string{}, byID["l-1"].StateCodes)
	assert.Equal(t, []string{"SGR"}, byID["l-2"].StateCodes)
	assert.Equal(t, "emp-2", byID["l-2"].EmployeeID)
	assert.Equal(t, []string{"SGR"}, byID["h-1"].StateCodes)
}

func TestConsolidate_OriginsKeptApart(t *testing.T) {
	company := calendar.EventItem{ID: "c-1", Date: day(time.May, 1), Description: "Labour Day", Origin: calendar.OriginCompany}
	gov := holiday("h-1", day(time.May, 1), "Labour Day", "ALL")

	out, err := calendar.Consolidate([]calendar.EventItem{gov, company})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, calendar.OriginCompany, out[0].Origin, "origin breaks the tie")
}

func TestConsolidate_SortedByDateThenDescription(t *testing.T) {
	in := []calendar.EventItem{
		holiday("h-3", day(time.May, 1), "Labour Day", "SGR"),
		holiday("h-2", day(time.February, 1), "Thaipusam", "SGR"),
		holiday("h-1", day(time.February, 1), "Federal Territory Day", "KUL"),
	}

	out, err := calendar.Consolidate(in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"h-1", "h-2", "h-3"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestConsolidate_Idempotent(t *testing.T) {
	in := []calendar.EventItem{
		holiday("h-1", day(time.March, 31), "Hari Raya", "SGR"),
		holiday("h-2", day(time.March, 31), "Hari Raya", "JHR"),
		holiday("h-3", day(time.May, 1), "Labour Day", "ALL"),
		holiday("h-4", day(time.May, 1), "Labour Day", "SGR"),
		holiday("h-5", day(time.June, 2), "Agong's Birthday", "KUL"),
		{ID: "h-6", Date: day(time.June, 3), Description: "Unscoped", Origin: calendar.OriginHoliday},
		{ID: "h-7", Date: day(time.June, 3), Description: "Unscoped", Origin: calendar.OriginHoliday},
		{ID: "c-1", Date: day(time.July, 1), Description: "Company day", Origin: calendar.OriginCompany},
		{ID: "l-1", Date: day(time.March, 31), Description: "Leave", Origin: calendar.OriginLeave},
	}

	once, err := calendar.Consolidate(in)
	require.NoError(t, err)
	twice, err := calendar.Consolidate(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestConsolidate_StableSyntheticID(t *testing.T) {
	in := []calendar.EventItem{
		holiday("h-1", day(time.March, 31), "Hari Raya", "SGR"),
		holiday("h-2", day(time.March, 31), "Hari Raya", "JHR"),
	}
	reversed := []calendar.EventItem{in[1], in[0]}

	a, err := calendar.Consolidate(in)
	require.NoError(t, err)
	b, err := calendar.Consolidate(reversed)
	require.NoError(t, err)
	assert.Equal(t, a[0].ID, b[0].ID)
	assert.Equal(t, a, b)
}

func TestConsolidate_DoesNotMutateInput(t *testing.T) {
	in := []calendar.EventItem{holiday("h-1", day(time.March, 31), "Hari Raya", "SGR")}

	_, err := calendar.Consolidate(in)
	require.NoError(t, err)
	assert.Nil(t, in[0].StateCodes)
}

func TestConsolidate_IDCollision(t *testing.T) {
	// Two different days reusing one id cannot both survive.
	in := []calendar.EventItem{
		holiday("dup", day(time.March, 31), "Hari Raya", "SGR"),
		holiday("dup", day(time.April, 1), "Hari Raya (second day)", "SGR"),
	}

	_, err := calendar.Consolidate(in)

	var ce *calendar.KeyCollisionError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, calendar.ErrConsolidationKeyCollision)
	assert.Equal(t, "dup", ce.ID)
}

func TestConsolidate_Empty(t *testing.T) {
	out, err := calendar.Consolidate(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// =============================================================================
// SCOPE
// =============================================================================

func TestScopeHelpers(t *testing.T) {
	events, err := calendar.Consolidate([]calendar.EventItem{
		holiday("h-1", day(time.March, 31), "Hari Raya", "SGR"),
		holiday("h-2", day(time.March, 31), "Hari Raya", "JHR"),
		holiday("h-3", day(time.May, 1), "Labour Day", "ALL"),
		{ID: "c-1", Date: day(time.July, 1), Description: "Company day", Origin: calendar.OriginCompany},
		{ID: "l-1", Date: day(time.April, 2), Description: "Leave", Origin: calendar.OriginLeave, EmployeeID: "emp-1"},
	})
	require.NoError(t, err)

	assert.True(t, calendar.IsPublicHoliday(events, day(time.March, 31), "SGR"))
	assert.False(t, calendar.IsPublicHoliday(events, day(time.March, 31), "KDH"))
	assert.True(t, calendar.IsPublicHoliday(events, day(time.May, 1), "KDH"))
	assert.True(t, calendar.IsPublicHoliday(events, day(time.July, 1), "KDH"), "company holiday is company wide")
	assert.False(t, calendar.IsPublicHoliday(events, day(time.April, 2), "SGR"), "leave is not a holiday")

	assert.Len(t, calendar.ForState(events, "KDH"), 3)
	assert.Len(t, calendar.ForState(events, ""), 4)

	// March 31 2025 is a Monday
	assert.Equal(t, ot.DayPublicHoliday, calendar.DayTypeFor(events, day(time.March, 31), "JHR"))
	assert.Equal(t, ot.DayWeekday, calendar.DayTypeFor(events, day(time.March, 31), "KDH"))
}

type fakeSource struct {
	events []calendar.EventItem
	err    error
}

func (f fakeSource) CalendarEvents(context.Context, time.Time, time.Time) ([]calendar.EventItem, error) {
	return f.events, f.err
}

func TestLoad(t *testing.T) {
	src := fakeSource{events: []calendar.EventItem{
		holiday("h-1", day(time.March, 31), "Hari Raya", "SGR"),
		holiday("h-2", day(time.March, 31), "Hari Raya", "JHR"),
	}}

	out, err := calendar.Load(context.Background(), src, day(time.March, 1), day(time.March, 31))
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = calendar.Load(context.Background(), src, day(time.April, 1), day(time.March, 1))
	assert.ErrorIs(t, err, ot.ErrInvalidInput)

	_, err = calendar.Load(context.Background(), fakeSource{err: errors.New("db down")}, day(time.March, 1), day(time.March, 31))
	assert.Error(t, err)
}
