package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownDay           = errors.New("unknown day of week")
	ErrUnknownTimeslot      = errors.New("unknown timeslot")
	ErrUnsupervisedSlot     = errors.New("unsupervised is not a schedulable timeslot")
	ErrInvalidSessionLength = errors.New("session length must be a multiple of 5 between 5 and 60 minutes")
	ErrProfileNotFound      = errors.New("student profile not found")
)

const (
	MinSessionLength     = 5
	MaxSessionLength     = 60
	SessionLengthStep    = 5
	DefaultSessionLength = 20
)

// DayOfWeek is a weekday ordinal, 1 (Sunday) through 7 (Saturday).
type DayOfWeek int

const (
	Sunday DayOfWeek = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// AllDays lists the week in storage order.
var AllDays = []DayOfWeek{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// dayKeys is the single source of storage keys. Documents written before the
// console existed use "Tues" and "Thurs", so those stay canonical.
var dayKeys = map[DayOfWeek]string{
	Sunday:    "Sun",
	Monday:    "Mon",
	Tuesday:   "Tues",
	Wednesday: "Wed",
	Thursday:  "Thurs",
	Friday:    "Fri",
	Saturday:  "Sat",
}

var dayLabels = map[string]DayOfWeek{
	"sun": Sunday, "sunday": Sunday,
	"mon": Monday, "monday": Monday,
	"tue": Tuesday, "tues": Tuesday, "tuesday": Tuesday,
	"wed": Wednesday, "weds": Wednesday, "wednesday": Wednesday,
	"thu": Thursday, "thur": Thursday, "thurs": Thursday, "thursday": Thursday,
	"fri": Friday, "friday": Friday,
	"sat": Saturday, "saturday": Saturday,
}

func (d DayOfWeek) Valid() bool {
	return d >= Sunday && d <= Saturday
}

// Key returns the storage key for the day. Every read and write of a profile
// document goes through this function.
func (d DayOfWeek) Key() string {
	return dayKeys[d]
}

func (d DayOfWeek) String() string {
	if !d.Valid() {
		return fmt.Sprintf("DayOfWeek(%d)", int(d))
	}
	return d.Key()
}

// ParseDay accepts any UI label for a day ("Tue", "Tues", "tuesday") and
// returns the weekday it names.
func ParseDay(label string) (DayOfWeek, error) {
	d, ok := dayLabels[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDay, label)
	}
	return d, nil
}

func (d DayOfWeek) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDay, int(d))
	}
	return []byte(d.Key()), nil
}

func (d *DayOfWeek) UnmarshalText(text []byte) error {
	parsed, err := ParseDay(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is one of the supervised windows, or the Unsupervised sentinel
// which is only ever displayed.
type TimeOfDay int

const (
	TimeOfDayAM TimeOfDay = iota + 1
	TimeOfDayPM
	TimeOfDayHome
	TimeOfDayUnsupervised
)

// SchedulableTimeslots are the slots a session can be stored under.
var SchedulableTimeslots = []TimeOfDay{TimeOfDayAM, TimeOfDayPM, TimeOfDayHome}

func (t TimeOfDay) Valid() bool {
	return t >= TimeOfDayAM && t <= TimeOfDayUnsupervised
}

func (t TimeOfDay) Schedulable() bool {
	return t >= TimeOfDayAM && t <= TimeOfDayHome
}

// StorageKey returns the document field for the slot. Unsupervised has none.
func (t TimeOfDay) StorageKey() (string, error) {
	switch t {
	case TimeOfDayAM:
		return "am", nil
	case TimeOfDayPM:
		return "pm", nil
	case TimeOfDayHome:
		return "home", nil
	case TimeOfDayUnsupervised:
		return "", ErrUnsupervisedSlot
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownTimeslot, int(t))
	}
}

// Label is the text shown on student cards.
func (t TimeOfDay) Label() string {
	switch t {
	case TimeOfDayAM:
		return "AM"
	case TimeOfDayPM:
		return "PM"
	case TimeOfDayHome:
		return "Home"
	case TimeOfDayUnsupervised:
		return "Blocked"
	default:
		return "Unknown"
	}
}

func (t TimeOfDay) String() string {
	switch t {
	case TimeOfDayUnsupervised:
		return "unsupervised"
	default:
		key, err := t.StorageKey()
		if err != nil {
			return fmt.Sprintf("TimeOfDay(%d)", int(t))
		}
		return key
	}
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "am", "morning":
		return TimeOfDayAM, nil
	case "pm", "afternoon":
		return TimeOfDayPM, nil
	case "home", "evening":
		return TimeOfDayHome, nil
	case "unsupervised", "blocked":
		return TimeOfDayUnsupervised, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeslot, s)
	}
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTimeslot, int(t))
	}
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ValidSessionLength reports whether minutes is one of 5, 10, ..., 60.
func ValidSessionLength(minutes int) bool {
	return minutes >= MinSessionLength && minutes <= MaxSessionLength && minutes%SessionLengthStep == 0
}

// Session is the app-access rule for one day and timeslot.
type Session struct {
	Apps                 []string
	SessionLengthMinutes int
}

func NewSession(apps []string, sessionLengthMinutes int) Session {
	cp := make([]string, 0, len(apps))
	seen := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		if _, dup := seen[app]; dup || app == "" {
			continue
		}
		seen[app] = struct{}{}
		cp = append(cp, app)
	}
	return Session{Apps: cp, SessionLengthMinutes: sessionLengthMinutes}
}

func EmptySession() Session {
	return Session{Apps: []string{}, SessionLengthMinutes: DefaultSessionLength}
}

// SingleAppLock is derived from the app list and never stored independently.
func (s Session) SingleAppLock() bool {
	return len(s.Apps) == 1
}

func (s Session) Validate() error {
	if !ValidSessionLength(s.SessionLengthMinutes) {
		return fmt.Errorf("%w: got %d", ErrInvalidSessionLength, s.SessionLengthMinutes)
	}
	return nil
}

type sessionJSON struct {
	Apps          []string `json:"apps"`
	SessionLength int      `json:"sessionLength"`
	OneAppLock    bool     `json:"oneAppLock"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	apps := s.Apps
	if apps == nil {
		apps = []string{}
	}
	return json.Marshal(sessionJSON{
		Apps:          apps,
		SessionLength: s.SessionLengthMinutes,
		OneAppLock:    s.SingleAppLock(),
	})
}

// UnmarshalJSON ignores the stored oneAppLock flag; it is recomputed from apps.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Apps == nil {
		raw.Apps = []string{}
	}
	s.Apps = raw.Apps
	s.SessionLengthMinutes = raw.SessionLength
	return nil
}

// DailySessions holds the three stored sessions of one day.
type DailySessions struct {
	AM   Session `json:"am"`
	PM   Session `json:"pm"`
	Home Session `json:"home"`
}

func EmptyDailySessions() DailySessions {
	return DailySessions{AM: EmptySession(), PM: EmptySession(), Home: EmptySession()}
}

func (d DailySessions) Get(slot TimeOfDay) (Session, error) {
	switch slot {
	case TimeOfDayAM:
		return d.AM, nil
	case TimeOfDayPM:
		return d.PM, nil
	case TimeOfDayHome:
		return d.Home, nil
	}
	_, err := slot.StorageKey()
	return Session{}, err
}

// With returns a copy of d with the session for slot replaced.
func (d DailySessions) With(slot TimeOfDay, s Session) (DailySessions, error) {
	switch slot {
	case TimeOfDayAM:
		d.AM = s
	case TimeOfDayPM:
		d.PM = s
	case TimeOfDayHome:
		d.Home = s
	default:
		_, err := slot.StorageKey()
		return d, err
	}
	return d, nil
}

// StudentAppProfile is one student's weekly schedule document.
type StudentAppProfile struct {
	StudentID  string                   `json:"id"`
	LocationID int                      `json:"locationId"`
	Sessions   map[string]DailySessions `json:"sessions"`
}

func NewDefaultProfile(studentID string, locationID int) StudentAppProfile {
	p := StudentAppProfile{
		StudentID:  studentID,
		LocationID: locationID,
		Sessions:   make(map[string]DailySessions, len(AllDays)),
	}
	for _, day := range AllDays {
		p.Sessions[day.Key()] = EmptyDailySessions()
	}
	return p
}

// Session looks up a stored session. The bool is false when the day key is
// absent from the document.
func (p StudentAppProfile) Session(day DayOfWeek, slot TimeOfDay) (Session, bool) {
	daily, ok := p.Sessions[day.Key()]
	if !ok {
		return Session{}, false
	}
	s, err := daily.Get(slot)
	if err != nil {
		return Session{}, false
	}
	return s, true
}

// WithSession returns a deep-enough copy of p with one day/timeslot replaced.
// Missing days are filled with empty sessions so the document stays complete.
func (p StudentAppProfile) WithSession(day DayOfWeek, slot TimeOfDay, s Session) (StudentAppProfile, error) {
	if !day.Valid() {
		return p, fmt.Errorf("%w: %d", ErrUnknownDay, int(day))
	}
	out := StudentAppProfile{
		StudentID:  p.StudentID,
		LocationID: p.LocationID,
		Sessions:   make(map[string]DailySessions, len(p.Sessions)+1),
	}
	for k, v := range p.Sessions {
		out.Sessions[k] = v
	}
	daily, ok := out.Sessions[day.Key()]
	if !ok {
		daily = EmptyDailySessions()
	}
	updated, err := daily.With(slot, s)
	if err != nil {
		return p, err
	}
	out.Sessions[day.Key()] = updated
	return out, nil
}

// Student is the roster entry the bulk setup screen works with.
type Student struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name"`
	LocationID int    `json:"location_id"`
}
