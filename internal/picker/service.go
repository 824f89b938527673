package picker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bookingslots/internal/bookingcache"
	"bookingslots/internal/bookingsapi"
	"bookingslots/internal/config"
	"bookingslots/internal/metrics"
	"bookingslots/internal/model"
	"bookingslots/internal/slots"
)

var (
	ErrSessionNotFound     = errors.New("picker session not found")
	ErrNoSettings          = errors.New("facility settings not loaded")
	ErrInvalidContext      = errors.New("invalid picker context")
	ErrNotInteractive      = errors.New("time slots cannot be selected right now")
	ErrUnknownSlot         = errors.New("no such time slot on this day")
	ErrSlotNotSelectable   = errors.New("time slot would overlap an existing booking")
	ErrIncompleteSelection = errors.New("select a start and end time first")
)

// Bookings is the booking cache as seen by the picker.
type Bookings interface {
	Lookup(key bookingcache.Key) bookingcache.Snapshot
	Get(ctx context.Context, key bookingcache.Key) (*bookingcache.Result, error)
	Invalidate(key bookingcache.Key)
}

// Booker writes bookings to the backend.
type Booker interface {
	CreateLocationBooking(ctx context.Context, req model.BookingRequest) (*model.Appointment, error)
	InvalidateLocation(ctx context.Context, kind model.Kind, locationID string) error
}

// View is the rendered state of a session. Rows are the hour-long bands of
// the day calendar the grid is drawn in.
type View struct {
	SessionID string           `json:"sessionId,omitempty"`
	State     State            `json:"state"`
	Context   Context          `json:"context"`
	Form      Form             `json:"form"`
	Selection slots.Selection  `json:"selection"`
	Grid      slots.Grid       `json:"grid"`
	Rows      []slots.TimeSlot `json:"rows"`
	Warning   string           `json:"warning,omitempty"`
}

// Service runs picker sessions against the booking cache.
type Service struct {
	store    *SessionStore
	bookings Bookings
	booker   Booker
	facility atomic.Pointer[config.FacilityConfig]
	logger   *zerolog.Logger

	now func() time.Time
}

// NewService creates a picker service.
func NewService(store *SessionStore, bookings Bookings, booker Booker, facility *config.FacilityConfig, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		store:    store,
		bookings: bookings,
		booker:   booker,
		logger:   logger,
		now:      time.Now,
	}
	if facility != nil {
		s.facility.Store(facility)
	}
	return s
}

// SetFacility swaps in reloaded facility settings. Sessions pick them up on
// their next view.
func (s *Service) SetFacility(cfg *config.FacilityConfig) {
	if cfg != nil {
		s.facility.Store(cfg)
	}
}

// Facility returns the current facility settings.
func (s *Service) Facility() *config.FacilityConfig {
	return s.facility.Load()
}

// Store returns the session store.
func (s *Service) Store() *SessionStore {
	return s.store
}

// Create starts a session. An empty form on an editing session starts from
// the booking being edited.
func (s *Service) Create(ctx context.Context, pc Context, form Form) (*View, error) {
	pc, err := normalizeContext(pc)
	if err != nil {
		return nil, err
	}
	if form == (Form{}) && pc.Editing != nil {
		form = Form{StartTime: pc.Editing.StartTime, EndTime: pc.Editing.EndTime}
	}

	sess := newSession(pc, form)
	s.store.Add(sess)
	metrics.SetActiveSessions(s.store.Len())

	sess.mu.Lock()
	defer sess.mu.Unlock()

	s.logger.Debug().Str("session", sess.ID).Str("location", pc.LocationID).Str("date", pc.Date).Msg("picker session created")
	return s.render(ctx, sess, false)
}

// View recomputes the session's grid. With wait set it blocks until the
// bookings are fetched.
func (s *Service) View(ctx context.Context, id string, wait bool) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.render(ctx, sess, wait)
}

// Toggle flips one slot, the way clicking a toggle button does.
func (s *Service) Toggle(ctx context.Context, id string, slotStart time.Time) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return s.applyToggles(ctx, sess, func(prev []time.Time) []time.Time {
		next := make([]time.Time, 0, len(prev)+1)
		removed := false
		for _, t := range prev {
			if t.Equal(slotStart) {
				removed = true
				continue
			}
			next = append(next, t)
		}
		if !removed {
			next = append(next, slotStart)
		}
		return next
	})
}

// SetToggles replaces the toggled set. Order does not matter.
func (s *Service) SetToggles(ctx context.Context, id string, toggles []time.Time) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return s.applyToggles(ctx, sess, func([]time.Time) []time.Time { return toggles })
}

// applyToggles runs a toggle interaction. change maps the current toggle
// set, as resynchronised against the latest bookings, to the new one.
func (s *Service) applyToggles(ctx context.Context, sess *Session, change func(prev []time.Time) []time.Time) (*View, error) {
	ev, err := s.evaluate(ctx, sess, false)
	if err != nil {
		return nil, err
	}
	if !ev.grid.Interactive() || sess.ctx.HasNoLegalSelection {
		return nil, ErrNotInteractive
	}
	next := uniqueTimes(change(sess.toggles))

	for _, t := range next {
		st, ok := findSlot(ev.grid, t)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, t.Format(time.RFC3339))
		}
		if !containsTime(sess.toggles, t) && !st.Selectable {
			return nil, fmt.Errorf("%w: %s", ErrSlotNotSelectable, t.Format("15:04"))
		}
	}

	reducer := slots.Reducer{Config: ev.cfg, Variant: sess.ctx.Variant}
	patch := reducer.Apply(sess.toggles, next)
	sel := patch.ApplyTo(ev.selection)

	toggles := slots.TogglesFor(sess.ctx.Variant, ev.slots, sel)
	if err := s.setToggles(sess, toggles); err != nil {
		return nil, err
	}
	s.writeForm(sess, patch, ev.loc)
	if patch.Cleared() {
		sess.hover = slots.Interval{}
	}
	sess.touch()

	return s.render(ctx, sess, false)
}

// Hover sets the preview range for the slot under the pointer.
func (s *Service) Hover(ctx context.Context, id string, slotStart time.Time) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	ev, err := s.evaluate(ctx, sess, false)
	if err != nil {
		return nil, err
	}
	// The pointer may be anywhere inside a slot.
	st, ok := findSlot(ev.grid, slots.SnapToSlot(ev.cfg, ev.day, slotStart, false))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, slotStart.Format(time.RFC3339))
	}

	if rng, ok := slots.HoverRange(sess.ctx.Variant, st.Slot(), ev.selection, len(sess.toggles), ev.bounds); ok {
		sess.hover = rng
	}
	sess.touch()
	return s.render(ctx, sess, false)
}

// ClearHover removes the preview range.
func (s *Service) ClearHover(ctx context.Context, id string) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.hover = slots.Interval{}
	sess.touch()
	return s.render(ctx, sess, false)
}

// Clear drops the selection. Overnight variants clear only the field they own.
func (s *Service) Clear(ctx context.Context, id string) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.clearOwnFields(sess); err != nil {
		return nil, err
	}
	sess.touch()
	return s.render(ctx, sess, false)
}

// SetContext re-targets the session at another day, resource, type or
// variant. Bookings for the previous key are no longer read.
func (s *Service) SetContext(ctx context.Context, id string, pc Context) (*View, error) {
	pc, err := normalizeContext(pc)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	prev := sess.ctx
	sess.ctx = pc
	if prev.Variant != pc.Variant {
		sess.fsm = NewFSM(pc.Variant)
	}

	if prev.Date != pc.Date || prev.Kind != pc.Kind {
		if err := s.dropFieldsOffDay(sess); err != nil {
			return nil, err
		}
	}
	sess.hover = slots.Interval{}
	sess.touch()

	return s.render(ctx, sess, false)
}

// Submit writes the selected interval as a booking. On success the cached
// bookings for the day are invalidated and the session starts over; on
// conflict the selection is kept so the user can pick again.
func (s *Service) Submit(ctx context.Context, id string) (*model.Appointment, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	pc := sess.ctx
	if pc.LocationID == "" || pc.Date == "" {
		return nil, fmt.Errorf("%w: location and date are required", ErrInvalidContext)
	}

	// Re-check against the bookings the grid was drawn from. Nothing is
	// written unless they are loaded and the grid is enabled.
	ev, err := s.evaluate(ctx, sess, false)
	if err != nil {
		return nil, err
	}
	if !ev.grid.Interactive() || pc.HasNoLegalSelection {
		return nil, ErrNotInteractive
	}
	if sess.form.StartTime == "" || sess.form.EndTime == "" {
		return nil, ErrIncompleteSelection
	}

	loc := ev.loc
	sel := selectionFromForm(sess.form, loc)
	if !sel.Complete() || !sel.End.After(sel.Start) {
		return nil, ErrIncompleteSelection
	}
	switch pc.Variant {
	case slots.VariantStart:
		if !ev.bounds.ContainsTime(sel.Start) {
			return nil, fmt.Errorf("%w: start %s is not on %s", ErrSlotNotSelectable, sess.form.StartTime, pc.Date)
		}
	case slots.VariantEnd:
		if !sel.End.After(ev.bounds.Start) || sel.End.After(ev.bounds.End) {
			return nil, fmt.Errorf("%w: end %s is not on %s", ErrSlotNotSelectable, sess.form.EndTime, pc.Date)
		}
	default:
		if !sel.Valid(ev.cfg.SlotDuration) {
			return nil, ErrIncompleteSelection
		}
	}
	if slots.OverlapsAny(sel.Interval(), ev.booked) {
		return nil, fmt.Errorf("%w: %s - %s", ErrSlotNotSelectable, sess.form.StartTime, sess.form.EndTime)
	}

	req := model.BookingRequest{
		PatientID:   pc.PatientID,
		LocationID:  pc.LocationID,
		ClinicianID: pc.ClinicianID,
		StartTime:   sess.form.StartTime,
		EndTime:     sess.form.EndTime,
	}

	appt, err := s.booker.CreateLocationBooking(ctx, req)
	key := cacheKey(pc)
	if err != nil {
		status := "error"
		if errors.Is(err, bookingsapi.ErrConflict) {
			status = "conflict"
			// Someone else took the slot; refetch so the grid shows it.
			s.invalidate(ctx, key)
		}
		metrics.IncBookingSubmitted(status)
		s.logger.Warn().Err(err).Str("session", sess.ID).Str("location", pc.LocationID).Msg("booking submit failed")
		return nil, err
	}

	metrics.IncBookingSubmitted("created")
	s.invalidate(ctx, key)
	// Overnight bookings also occupy the following day.
	if day, err := time.ParseInLocation(model.DateLayout, pc.Date, loc); err == nil {
		next := day.AddDate(0, 0, 1)
		if sel.End.After(next) {
			s.invalidate(ctx, bookingcache.Key{Kind: pc.Kind, LocationID: pc.LocationID, Day: next.Format(model.DateLayout)})
		}
	}

	sess.form = Form{}
	sess.hover = slots.Interval{}
	sess.ctx.Editing = nil
	s.syncState(sess, nil)
	sess.touch()

	s.logger.Info().Str("session", sess.ID).Str("booking", appt.ID).Str("location", pc.LocationID).
		Str("start", req.StartTime).Str("end", req.EndTime).Msg("booking created")
	return appt, nil
}

// Delete cancels a session.
func (s *Service) Delete(id string) error {
	if !s.store.Delete(id) {
		return ErrSessionNotFound
	}
	metrics.SetActiveSessions(s.store.Len())
	return nil
}

// Cleanup drops idle sessions.
func (s *Service) Cleanup() int {
	removed := s.store.Cleanup()
	metrics.SetActiveSessions(s.store.Len())
	return removed
}

func (s *Service) session(id string) (*Session, error) {
	sess := s.store.Get(id)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) invalidate(ctx context.Context, key bookingcache.Key) {
	s.bookings.Invalidate(key)
	if err := s.booker.InvalidateLocation(ctx, key.Kind, key.LocationID); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to drop cached responses")
	}
}

// setToggles records a toggle change made by the user. The move must be a
// legal transition for the session's variant.
func (s *Service) setToggles(sess *Session, toggles []time.Time) error {
	next := stateOf(len(toggles))
	if err := sess.fsm.Transition(sess.state, next); err != nil {
		s.logger.Warn().Err(err).Str("session", sess.ID).Msg("selection change rejected")
		return err
	}
	s.enterState(sess, toggles, next)
	return nil
}

// syncState records toggles rebuilt from the form fields. Fields written
// outside a toggle, like a prefilled form or a new context, may jump
// straight to any state; such a jump is a reset, not a rejected click.
func (s *Service) syncState(sess *Session, toggles []time.Time) {
	next := stateOf(len(toggles))
	if err := sess.fsm.Transition(sess.state, next); err != nil {
		s.logger.Debug().Err(err).Str("session", sess.ID).Msg("selection state reset from form fields")
	}
	s.enterState(sess, toggles, next)
}

func (s *Service) enterState(sess *Session, toggles []time.Time, next State) {
	if next != sess.state {
		metrics.IncSelectionEvent(string(next))
	}
	sess.toggles = toggles
	sess.state = next
}

func (s *Service) writeForm(sess *Session, p slots.Patch, loc *time.Location) {
	if p.SetStart {
		sess.form.StartTime = model.FormatDateTime(p.Start, loc)
	}
	if p.SetEnd {
		sess.form.EndTime = model.FormatDateTime(p.End, loc)
	}
}

func (s *Service) clearOwnFields(sess *Session) error {
	switch sess.ctx.Variant {
	case slots.VariantStart:
		sess.form.StartTime = ""
	case slots.VariantEnd:
		sess.form.EndTime = ""
	default:
		sess.form = Form{}
	}
	sess.hover = slots.Interval{}
	return s.setToggles(sess, nil)
}

// dropFieldsOffDay clears a selection that belongs to another day after the
// date changes. END pickers are handled by resync.
func (s *Service) dropFieldsOffDay(sess *Session) error {
	fac := s.Facility()
	if fac == nil || sess.ctx.Date == "" {
		return nil
	}
	loc := fac.Location()
	day, err := time.ParseInLocation(model.DateLayout, sess.ctx.Date, loc)
	if err != nil {
		return nil
	}
	bounds := slots.Interval{Start: day, End: day.AddDate(0, 0, 1)}

	start, err := model.ParseDateTime(sess.form.StartTime, loc)
	startOnDay := err == nil && bounds.ContainsTime(start)

	switch sess.ctx.Variant {
	case slots.VariantStart:
		if !startOnDay {
			sess.form.StartTime = ""
		}
	case slots.VariantEnd:
	default:
		if !startOnDay {
			sess.form = Form{}
		}
	}
	return s.setToggles(sess, nil)
}

func cacheKey(pc Context) bookingcache.Key {
	return bookingcache.Key{Kind: pc.Kind, LocationID: pc.LocationID, Day: pc.Date}
}

func normalizeContext(pc Context) (Context, error) {
	kind, ok := model.ParseKind(string(pc.Kind))
	if !ok {
		return pc, fmt.Errorf("%w: unknown type %q", ErrInvalidContext, pc.Kind)
	}
	variant, ok := slots.ParseVariant(string(pc.Variant))
	if !ok {
		return pc, fmt.Errorf("%w: unknown variant %q", ErrInvalidContext, pc.Variant)
	}
	if pc.Date != "" {
		if _, err := time.Parse(model.DateLayout, pc.Date); err != nil {
			return pc, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidContext, pc.Date)
		}
	}
	pc.Kind = kind
	pc.Variant = variant
	return pc, nil
}

func selectionFromForm(f Form, loc *time.Location) slots.Selection {
	var sel slots.Selection
	if t, err := model.ParseDateTime(f.StartTime, loc); err == nil {
		sel.Start = t
	}
	if t, err := model.ParseDateTime(f.EndTime, loc); err == nil {
		sel.End = t
	}
	return sel
}

func findSlot(g slots.Grid, start time.Time) (slots.SlotState, bool) {
	for _, st := range g.Slots {
		if st.Start.Equal(start) {
			return st, true
		}
	}
	return slots.SlotState{}, false
}

// uniqueTimes drops repeated instants, keeping the first occurrence.
func uniqueTimes(ts []time.Time) []time.Time {
	out := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		if !containsTime(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func containsTime(ts []time.Time, t time.Time) bool {
	for _, x := range ts {
		if x.Equal(t) {
			return true
		}
	}
	return false
}
