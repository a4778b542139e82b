package attendance

import "time"

// DateLayout is the calendar date format of Session.Date.
const DateLayout = "2006-01-02"

// Session is a single check-in to check-out interval.
type Session struct {
	CheckedIn        bool       `json:"is_checked_in"`
	CheckInTime      *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime     *time.Time `json:"check_out_time,omitempty"`
	Location         string     `json:"location"`
	Date             string     `json:"date,omitempty"`
	TotalWorkMinutes int        `json:"total_work_minutes"`
}

// Summary is a session together with the values derived from it.
type Summary struct {
	Session       Session `json:"session"`
	WorkMinutes   int     `json:"work_minutes"`
	WorkDuration  string  `json:"work_duration"`
	Overtime      string  `json:"overtime"`
	LateCheckIn   bool    `json:"late_check_in"`
	EarlyCheckOut bool    `json:"early_check_out"`
}

// Policy holds the workday thresholds.
type Policy struct {
	// LateAfter and EarlyBefore are offsets since local midnight.
	LateAfter       time.Duration
	EarlyBefore     time.Duration
	StandardMinutes int
	DefaultLocation string
	Location        *time.Location
}

// DefaultPolicy returns a 09:00 to 17:00, eight hour workday at the "Office".
func DefaultPolicy() Policy {
	return Policy{
		LateAfter:       9 * time.Hour,
		EarlyBefore:     17 * time.Hour,
		StandardMinutes: 480,
		DefaultLocation: "Office",
		Location:        time.Local,
	}
}

// persistedStatus is the JSON shape stored under the attendanceStatus key.
type persistedStatus struct {
	IsCheckedIn bool   `json:"isCheckedIn"`
	CheckInTime string `json:"checkInTime"`
	Location    string `json:"location,omitempty"`
	Date        string `json:"date,omitempty"`
}

func (s Session) clone() Session {
	out := s
	if s.CheckInTime != nil {
		in := *s.CheckInTime
		out.CheckInTime = &in
	}
	if s.CheckOutTime != nil {
		co := *s.CheckOutTime
		out.CheckOutTime = &co
	}
	return out
}
