package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateSelection(t *testing.T) {
	d := 30 * time.Minute

	tests := []struct {
		name    string
		toggles []time.Time
		want    Selection
	}{
		{"empty resets", nil, Selection{}},
		{"single slot", []time.Time{at(9, 0)}, Selection{Start: at(9, 0), End: at(9, 30)}},
		{"in order", []time.Time{at(9, 0), at(9, 30)}, Selection{Start: at(9, 0), End: at(10, 0)}},
		{"reverse click order", []time.Time{at(9, 30), at(9, 0)}, Selection{Start: at(9, 0), End: at(10, 0)}},
		{"gap is filled", []time.Time{at(14, 0), at(11, 0), at(12, 30)}, Selection{Start: at(11, 0), End: at(14, 30)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UpdateSelection(tt.toggles, d)
			assert.Equal(t, tt.want, got)
			if !got.IsEmpty() {
				assert.True(t, got.Valid(d))
			}
		})
	}
}

func TestUpdateSelection_DoesNotMutateInput(t *testing.T) {
	toggles := []time.Time{at(10, 0), at(9, 0)}
	UpdateSelection(toggles, 30*time.Minute)
	assert.Equal(t, at(10, 0), toggles[0])
}

func TestReducer_Range(t *testing.T) {
	r := Reducer{Config: clinicConfig(), Variant: VariantRange}

	tests := []struct {
		name string
		prev []time.Time
		next []time.Time
		want Selection
	}{
		{"fresh selection", nil, []time.Time{at(9, 0)}, Selection{Start: at(9, 0), End: at(9, 30)}},
		{"deselect only slot", []time.Time{at(9, 0)}, nil, Selection{}},
		{"second toggle makes run", []time.Time{at(9, 0)}, []time.Time{at(9, 0), at(11, 0)}, Selection{Start: at(9, 0), End: at(11, 30)}},
		{"tail before head", []time.Time{at(11, 0)}, []time.Time{at(11, 0), at(9, 0)}, Selection{Start: at(9, 0), End: at(11, 30)}},
		{
			"drop head",
			[]time.Time{at(9, 0), at(9, 30), at(10, 0)},
			[]time.Time{at(9, 30), at(10, 0)},
			Selection{Start: at(9, 30), End: at(10, 30)},
		},
		{
			"drop tail",
			[]time.Time{at(9, 0), at(9, 30), at(10, 0)},
			[]time.Time{at(9, 0), at(9, 30)},
			Selection{Start: at(9, 0), End: at(10, 0)},
		},
		{
			"toggle middle clears",
			[]time.Time{at(9, 0), at(9, 30), at(10, 0)},
			[]time.Time{at(9, 0), at(10, 0)},
			Selection{},
		},
		{
			"extend run clears",
			[]time.Time{at(9, 0), at(9, 30)},
			[]time.Time{at(9, 0), at(9, 30), at(10, 0)},
			Selection{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := r.Apply(tt.prev, tt.next)
			assert.True(t, p.SetStart)
			assert.True(t, p.SetEnd)
			assert.Equal(t, tt.want, p.ApplyTo(Selection{Start: at(15, 0), End: at(16, 0)}))
		})
	}
}

func TestReducer_Start(t *testing.T) {
	r := Reducer{Config: clinicConfig(), Variant: VariantStart}
	existingEnd := at(12, 0)

	p := r.Apply(nil, []time.Time{at(16, 0)})
	assert.False(t, p.SetEnd)
	assert.Equal(t, Selection{Start: at(16, 0), End: existingEnd}, p.ApplyTo(Selection{End: existingEnd}))

	// Shorten by dropping the earliest slot.
	p = r.Apply([]time.Time{at(16, 0), at(16, 30)}, []time.Time{at(16, 30)})
	assert.Equal(t, at(16, 30), p.Start)

	// Dropping the latest of two would leave a start not reaching end of day.
	p = r.Apply([]time.Time{at(16, 0), at(16, 30)}, []time.Time{at(16, 0)})
	assert.True(t, p.SetStart)
	assert.True(t, p.Start.IsZero())

	p = r.Apply([]time.Time{at(16, 30)}, nil)
	assert.True(t, p.Cleared())
}

func TestReducer_End(t *testing.T) {
	r := Reducer{Config: clinicConfig(), Variant: VariantEnd}

	p := r.Apply(nil, []time.Time{at(9, 30)})
	assert.False(t, p.SetStart)
	assert.Equal(t, at(10, 0), p.End)

	p = r.Apply([]time.Time{at(9, 0), at(9, 30), at(10, 0)}, []time.Time{at(9, 0), at(9, 30)})
	assert.Equal(t, at(10, 0), p.End)

	// Dropping the earliest of two would leave a gap before the end slot.
	p = r.Apply([]time.Time{at(9, 0), at(9, 30)}, []time.Time{at(9, 30)})
	assert.True(t, p.SetEnd)
	assert.True(t, p.End.IsZero())
}

func TestTogglesFor(t *testing.T) {
	cfg := clinicConfig()
	grid := CalculateTimeSlots(cfg, at(0, 0))

	got := TogglesFor(VariantRange, grid, Selection{Start: at(9, 0), End: at(10, 0)})
	assert.Equal(t, []time.Time{at(9, 0), at(9, 30)}, got)

	got = TogglesFor(VariantStart, grid, Selection{Start: at(16, 0)})
	assert.Equal(t, []time.Time{at(16, 0), at(16, 30)}, got)

	got = TogglesFor(VariantEnd, grid, Selection{End: at(10, 0)})
	assert.Equal(t, []time.Time{at(9, 0), at(9, 30)}, got)

	assert.Empty(t, TogglesFor(VariantRange, grid, Selection{}))
}

func TestHoverRange(t *testing.T) {
	day := clinicConfig().DayBounds(at(0, 0))
	slot := TimeSlot{Start: at(11, 0), End: at(11, 30)}

	got, ok := HoverRange(VariantRange, slot, Selection{}, 0, day)
	require.True(t, ok)
	assert.Equal(t, slot, got)

	got, ok = HoverRange(VariantRange, slot, Selection{Start: at(9, 0), End: at(9, 30)}, 1, day)
	require.True(t, ok)
	assert.Equal(t, Interval{Start: at(9, 0), End: at(11, 30)}, got)

	_, ok = HoverRange(VariantRange, slot, Selection{Start: at(9, 0), End: at(10, 0)}, 2, day)
	assert.False(t, ok)

	got, ok = HoverRange(VariantStart, slot, Selection{}, 0, day)
	require.True(t, ok)
	assert.Equal(t, day.End, got.End)

	_, ok = HoverRange(VariantEnd, slot, Selection{End: at(10, 0)}, 1, day)
	assert.False(t, ok)
}

func TestParseVariant(t *testing.T) {
	v, ok := ParseVariant("")
	assert.True(t, ok)
	assert.Equal(t, VariantRange, v)

	v, ok = ParseVariant("end")
	assert.True(t, ok)
	assert.Equal(t, VariantEnd, v)

	_, ok = ParseVariant("middle")
	assert.False(t, ok)
}
