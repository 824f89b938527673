package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	booking := Interval{Start: at(10, 0), End: at(11, 0)}

	tests := []struct {
		name string
		slot Interval
		want bool
	}{
		{"ends at booking start", Interval{Start: at(9, 30), End: at(10, 0)}, false},
		{"starts at booking end", Interval{Start: at(11, 0), End: at(11, 30)}, false},
		{"inside", Interval{Start: at(10, 0), End: at(10, 30)}, true},
		{"straddles start", Interval{Start: at(9, 45), End: at(10, 15)}, true},
		{"covers", Interval{Start: at(9, 0), End: at(12, 0)}, true},
		{"far before", Interval{Start: at(8, 0), End: at(9, 0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.slot, booking))
			assert.Equal(t, tt.want, Overlaps(booking, tt.slot), "symmetric")
		})
	}
}

func TestOverlaps_NoFalsePositivesOnGrid(t *testing.T) {
	slots := CalculateTimeSlots(clinicConfig(), at(0, 0))
	for i := range slots {
		for j := range slots {
			if i == j {
				continue
			}
			assert.False(t, Overlaps(slots[i], slots[j]), "slots %d and %d", i, j)
		}
	}
}

func TestOverlapsAny(t *testing.T) {
	busy := []Interval{
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(14, 0), End: at(15, 0)},
	}
	assert.True(t, OverlapsAny(Interval{Start: at(14, 30), End: at(15, 30)}, busy))
	assert.False(t, OverlapsAny(Interval{Start: at(11, 0), End: at(14, 0)}, busy))
	assert.False(t, OverlapsAny(Interval{Start: at(11, 0), End: at(14, 0)}, nil))
}

func TestIsTimeSlotWithinRange(t *testing.T) {
	rng := Interval{Start: at(9, 0), End: at(10, 0)}

	assert.True(t, IsTimeSlotWithinRange(Interval{Start: at(9, 0), End: at(9, 30)}, rng))
	assert.True(t, IsTimeSlotWithinRange(Interval{Start: at(9, 30), End: at(10, 0)}, rng))
	assert.True(t, IsTimeSlotWithinRange(rng, rng))
	assert.False(t, IsTimeSlotWithinRange(Interval{Start: at(10, 0), End: at(10, 30)}, rng))
	assert.False(t, IsTimeSlotWithinRange(Interval{Start: at(8, 30), End: at(9, 0)}, rng))
	assert.False(t, IsTimeSlotWithinRange(rng, Interval{}))
}

func TestInterval_Helpers(t *testing.T) {
	i := Interval{Start: at(9, 0), End: at(9, 30)}
	assert.Equal(t, 30*time.Minute, i.Duration())
	assert.True(t, i.ContainsTime(at(9, 0)))
	assert.False(t, i.ContainsTime(at(9, 30)))
	assert.True(t, Interval{}.IsZero())

	other := Interval{Start: at(9, 0).In(time.FixedZone("X", 3600)), End: at(9, 30)}
	assert.True(t, i.Equal(other))
}
