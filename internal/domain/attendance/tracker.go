package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/officedesk/internal/repository"
)

// Tracker owns the attendance session of a single client.
type Tracker struct {
	store     Store
	announcer Announcer
	logger    *slog.Logger
	policy    Policy
	now       func() time.Time

	mu      sync.Mutex
	session Session
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithAnnouncer sets where success messages go.
func WithAnnouncer(a Announcer) Option {
	return func(t *Tracker) { t.announcer = a }
}

// WithPolicy sets the workday thresholds.
func WithPolicy(p Policy) Option {
	return func(t *Tracker) { t.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker and restores an open session from store.
func NewTracker(ctx context.Context, store Store, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		store:  store,
		policy: DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if t.policy.Location == nil {
		t.policy.Location = time.Local
	}
	if t.policy.DefaultLocation == "" {
		t.policy.DefaultLocation = DefaultPolicy().DefaultLocation
	}
	t.session = Session{Location: t.policy.DefaultLocation}

	if err := t.restore(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) restore(ctx context.Context) error {
	data, err := t.store.Get(ctx, repository.KeyAttendanceStatus)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading attendance status: %w", err)
	}

	var status persistedStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		t.logger.Warn("discarding unreadable attendance status", "error", err)
		return nil
	}
	if !status.IsCheckedIn {
		return nil
	}

	raw := status.CheckInTime
	if raw == "" {
		raw, err = t.store.Get(ctx, repository.KeyCheckInTime)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("loading check-in time: %w", err)
		}
	}
	checkIn, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t.logger.Warn("discarding attendance status without a valid check-in time", "value", raw)
		return nil
	}

	location := status.Location
	if location == "" {
		location = t.policy.DefaultLocation
	}
	date := status.Date
	if date == "" {
		date = checkIn.In(t.policy.Location).Format(DateLayout)
	}

	t.session = Session{
		CheckedIn:   true,
		CheckInTime: &checkIn,
		Location:    location,
		Date:        date,
	}
	t.logger.Info("restored open attendance session", "check_in", checkIn, "location", location)
	return nil
}

// CheckIn opens a session at the current time.
func (t *Tracker) CheckIn(ctx context.Context, location string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session.CheckedIn {
		return nil, ErrAlreadyCheckedIn
	}
	if location == "" {
		location = t.policy.DefaultLocation
	}

	now := t.now()
	sess := Session{
		CheckedIn:   true,
		CheckInTime: &now,
		Location:    location,
		Date:        now.In(t.policy.Location).Format(DateLayout),
	}
	if err := t.persist(ctx, sess); err != nil {
		return nil, err
	}
	t.session = sess

	t.announce(ctx, "Checked in", "Checked in successfully")
	t.logger.Info("checked in", "location", location, "at", now)

	out := sess.clone()
	return &out, nil
}

// CheckOut closes the open session and clears its persisted record.
func (t *Tracker) CheckOut(ctx context.Context) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.session.CheckedIn || t.session.CheckInTime == nil {
		return nil, ErrNoActiveSession
	}

	now := t.now()
	closed := t.session.clone()
	closed.CheckedIn = false
	closed.CheckOutTime = &now
	closed.TotalWorkMinutes = wholeMinutes(now.Sub(*closed.CheckInTime))

	if err := t.store.Delete(ctx, repository.KeyAttendanceStatus, repository.KeyCheckInTime); err != nil {
		return nil, fmt.Errorf("clearing attendance status: %w", err)
	}
	t.session = closed

	duration := FormatDuration(closed.TotalWorkMinutes)
	t.announce(ctx, "Checked out", "Checked out successfully. Total work time: "+duration)
	t.logger.Info("checked out", "total", duration)

	out := closed.clone()
	return &out, nil
}

// ResetSession discards the in-memory and persisted session.
func (t *Tracker) ResetSession(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.session = Session{Location: t.policy.DefaultLocation}
	if err := t.store.Delete(ctx, repository.KeyAttendanceStatus, repository.KeyCheckInTime); err != nil {
		return fmt.Errorf("clearing attendance status: %w", err)
	}
	return nil
}

// Status returns a copy of the current session.
func (t *Tracker) Status() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.clone()
}

// CurrentWorkDuration is the time elapsed since check-in, or zero when checked out.
func (t *Tracker) CurrentWorkDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed()
}

// CalculateOvertime formats the minutes worked beyond the standard day.
func (t *Tracker) CalculateOvertime() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return FormatDuration(t.overtimeMinutes())
}

// IsLateCheckIn reports whether check-in happened after the late threshold.
func (t *Tracker) IsLateCheckIn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lateCheckIn()
}

// IsEarlyCheckOut reports whether check-out happened before the early threshold.
func (t *Tracker) IsEarlyCheckOut() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.earlyCheckOut()
}

// Summary returns the session with its derived values, computed at one instant.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	minutes := t.workedMinutes()
	return Summary{
		Session:       t.session.clone(),
		WorkMinutes:   minutes,
		WorkDuration:  FormatDuration(minutes),
		Overtime:      FormatDuration(t.overtimeMinutes()),
		LateCheckIn:   t.lateCheckIn(),
		EarlyCheckOut: t.earlyCheckOut(),
	}
}

func (t *Tracker) elapsed() time.Duration {
	if !t.session.CheckedIn || t.session.CheckInTime == nil {
		return 0
	}
	d := t.now().Sub(*t.session.CheckInTime)
	if d < 0 {
		return 0
	}
	return d
}

// workedMinutes is the running total while open, else the closed total.
func (t *Tracker) workedMinutes() int {
	if t.session.CheckedIn {
		return wholeMinutes(t.elapsed())
	}
	return t.session.TotalWorkMinutes
}

func (t *Tracker) overtimeMinutes() int {
	excess := t.workedMinutes() - t.policy.StandardMinutes
	if excess < 0 {
		return 0
	}
	return excess
}

func (t *Tracker) lateCheckIn() bool {
	if t.session.CheckInTime == nil {
		return false
	}
	return sinceMidnight(*t.session.CheckInTime, t.policy.Location) > t.policy.LateAfter
}

func (t *Tracker) earlyCheckOut() bool {
	if t.session.CheckOutTime == nil {
		return false
	}
	return sinceMidnight(*t.session.CheckOutTime, t.policy.Location) < t.policy.EarlyBefore
}

func (t *Tracker) persist(ctx context.Context, sess Session) error {
	checkIn := sess.CheckInTime.Format(time.RFC3339Nano)
	data, err := json.Marshal(persistedStatus{
		IsCheckedIn: true,
		CheckInTime: checkIn,
		Location:    sess.Location,
		Date:        sess.Date,
	})
	if err != nil {
		return fmt.Errorf("encoding attendance status: %w", err)
	}
	if err := t.store.Set(ctx, repository.KeyAttendanceStatus, string(data)); err != nil {
		return fmt.Errorf("saving attendance status: %w", err)
	}
	if err := t.store.Set(ctx, repository.KeyCheckInTime, checkIn); err != nil {
		return fmt.Errorf("saving check-in time: %w", err)
	}
	return nil
}

func (t *Tracker) announce(ctx context.Context, title, body string) {
	if t.announcer == nil {
		return
	}
	if err := t.announcer.Announce(ctx, title, body); err != nil {
		t.logger.Debug("announcement failed", "title", title, "error", err)
	}
}
