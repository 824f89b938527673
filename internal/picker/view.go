package picker

import (
	"context"
	"errors"
	"time"

	"bookingslots/internal/bookingcache"
	"bookingslots/internal/model"
	"bookingslots/internal/slots"
)

// evaluation is one recomputation of a session against current settings
// and bookings.
type evaluation struct {
	cfg    slots.Config
	loc    *time.Location
	day    time.Time
	bounds slots.Interval
	slots  []slots.TimeSlot

	ready  bool
	booked []slots.Interval
	appts  []model.Appointment

	selection slots.Selection
	grid      slots.Grid
}

// Preview classifies a day without creating a session.
func (s *Service) Preview(ctx context.Context, pc Context, form Form, wait bool) (*View, error) {
	pc, err := normalizeContext(pc)
	if err != nil {
		return nil, err
	}
	sess := newSession(pc, form)
	return s.render(ctx, sess, wait)
}

func (s *Service) render(ctx context.Context, sess *Session, wait bool) (*View, error) {
	ev, err := s.evaluate(ctx, sess, wait)
	if err != nil {
		return nil, err
	}

	v := &View{
		SessionID: sess.ID,
		State:     sess.state,
		Context:   sess.ctx,
		Form:      sess.form,
		Selection: ev.selection,
		Grid:      ev.grid,
		Rows:      slots.HourlyRows(ev.slots, ev.day, ev.loc),
	}
	if sess.ctx.Kind == model.KindBookings && ev.ready {
		editingID := ""
		if sess.ctx.Editing != nil {
			editingID = sess.ctx.Editing.ID
		}
		v.Warning = model.SameDayWarning(ev.appts, sess.ctx.PatientID, sess.ctx.LocationID, ev.day, editingID, ev.loc)
	}
	return v, nil
}

func (s *Service) evaluate(ctx context.Context, sess *Session, wait bool) (*evaluation, error) {
	fac := s.Facility()
	if fac == nil {
		return nil, ErrNoSettings
	}
	loc := fac.Location()
	ev := &evaluation{loc: loc}

	cfg, err := fac.SlotConfig(sess.ctx.Kind)
	if err != nil {
		// An unusable grid renders as no slots.
		s.logger.Warn().Err(err).Str("type", string(sess.ctx.Kind)).Msg("invalid slot settings")
		cfg = slots.Config{Location: loc}
	}
	ev.cfg = cfg

	disabled := sess.ctx.Disabled || sess.ctx.LocationID == ""
	if sess.ctx.Date == "" {
		ev.day = s.now().In(loc)
		disabled = true
	} else {
		ev.day, err = time.ParseInLocation(model.DateLayout, sess.ctx.Date, loc)
		if err != nil {
			return nil, ErrInvalidContext
		}
	}
	ev.bounds = cfg.DayBounds(ev.day)
	ev.slots = slots.CalculateTimeSlots(cfg, ev.day)

	var (
		res      *bookingcache.Result
		loading  bool
		fetchErr error
	)
	if !disabled {
		key := cacheKey(sess.ctx)
		if wait {
			res, fetchErr = s.bookings.Get(ctx, key)
			if fetchErr != nil && (errors.Is(fetchErr, context.Canceled) || errors.Is(fetchErr, context.DeadlineExceeded)) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
		} else {
			snap := s.bookings.Lookup(key)
			switch snap.Status {
			case bookingcache.StatusReady:
				res = snap.Result
			case bookingcache.StatusFailed:
				fetchErr = snap.Err
			default:
				loading = true
			}
		}
	}
	if res != nil {
		ev.ready = true
		ev.appts = res.Appointments
		ev.booked = slots.BookedIntervals(res.Intervals, editingInterval(sess.ctx.Editing, loc))
	}

	s.resync(sess, ev)
	ev.selection = selectionFromForm(sess.form, loc)

	ev.grid = slots.Classify(slots.ClassifyInput{
		Config:              cfg,
		Day:                 ev.day,
		Variant:             sess.ctx.Variant,
		Selection:           ev.selection,
		Hover:               sess.hover,
		Booked:              ev.booked,
		Loading:             loading,
		Err:                 fetchErr,
		Disabled:            disabled,
		HasNoLegalSelection: sess.ctx.HasNoLegalSelection,
	})
	return ev, nil
}

// resync treats the form fields as the source of truth and brings the toggle
// set in line with them, clearing fields that cannot stand for this variant.
func (s *Service) resync(sess *Session, ev *evaluation) {
	form := sess.form
	var toggles []time.Time

	switch sess.ctx.Variant {
	case slots.VariantStart:
		start, err := model.ParseDateTime(form.StartTime, ev.loc)
		switch {
		case form.StartTime == "" || err != nil:
			form.StartTime = ""
		case ev.ready && slots.OverlapsAny(slots.Interval{Start: start, End: ev.bounds.End}, ev.booked):
			form.StartTime = ""
		default:
			toggles = slots.TogglesFor(slots.VariantStart, ev.slots, slots.Selection{Start: start})
		}

	case slots.VariantEnd:
		end, err := model.ParseDateTime(form.EndTime, ev.loc)
		switch {
		case form.EndTime == "" || err != nil:
			form.EndTime = ""
		case sess.ctx.HasNoLegalSelection || !end.After(ev.bounds.Start) || end.After(ev.bounds.End):
			form.EndTime = ""
		default:
			toggles = slots.TogglesFor(slots.VariantEnd, ev.slots, slots.Selection{End: end})
		}

	default:
		switch {
		case form.StartTime == "":
			// A range needs both ends or neither.
			form.EndTime = ""
		case form.EndTime == "":
			// Coming from an overnight booking: keep only the first slot.
			start, err := model.ParseDateTime(form.StartTime, ev.loc)
			slot, ok := slots.SlotContaining(ev.cfg, start)
			if err != nil || !ok {
				form.StartTime = ""
				break
			}
			form.StartTime = model.FormatDateTime(slot.Start, ev.loc)
			form.EndTime = model.FormatDateTime(slot.End, ev.loc)
		}
		if form.StartTime != "" {
			toggles = slots.TogglesFor(slots.VariantRange, ev.slots, selectionFromForm(form, ev.loc))
		}
	}

	if form != sess.form {
		s.logger.Debug().Str("session", sess.ID).Str("start", form.StartTime).Str("end", form.EndTime).
			Msg("picker fields resynchronised")
	}
	sess.form = form
	s.syncState(sess, toggles)
}

func editingInterval(e *Editing, loc *time.Location) slots.Interval {
	if e == nil {
		return slots.Interval{}
	}
	start, err := model.ParseDateTime(e.StartTime, loc)
	if err != nil {
		return slots.Interval{}
	}
	end, err := model.ParseDateTime(e.EndTime, loc)
	if err != nil {
		return slots.Interval{}
	}
	return slots.Interval{Start: start, End: end}
}
