package bookingcache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bookingslots/internal/model"
)

// Source is the part of the bookings backend the cache reads from.
type Source interface {
	ListLocationBookings(ctx context.Context, locationID string, after, before time.Time) ([]model.Appointment, error)
	ListLocationAssignments(ctx context.Context, locationID, after, before string) ([]model.LocationAssignment, error)
}

// NewFetchFunc builds a FetchFunc over src. location reports the current
// facility timezone, which may change on config reload.
func NewFetchFunc(src Source, location func() *time.Location, logger *zerolog.Logger) FetchFunc {
	return func(ctx context.Context, key Key) (*Result, error) {
		loc := location()
		day, err := time.ParseInLocation(model.DateLayout, key.Day, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid day %q: %w", key.Day, err)
		}

		if key.Kind == model.KindAssignments {
			assignments, err := src.ListLocationAssignments(ctx, key.LocationID, key.Day, key.Day)
			if err != nil {
				return nil, err
			}
			intervals, bad := model.AssignmentIntervals(assignments, loc)
			if bad > 0 {
				logger.Warn().Int("skipped", bad).Str("key", key.String()).Msg("malformed assignments skipped")
			}
			return &Result{Intervals: intervals}, nil
		}

		after := day
		before := day.AddDate(0, 0, 1).Add(-time.Second)
		appts, err := src.ListLocationBookings(ctx, key.LocationID, after, before)
		if err != nil {
			return nil, err
		}
		intervals, bad := model.Intervals(appts, loc)
		if bad > 0 {
			logger.Warn().Int("skipped", bad).Str("key", key.String()).Msg("malformed appointments skipped")
		}
		return &Result{Intervals: intervals, Appointments: appts}, nil
	}
}
