package trigger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/stayadmin/internal/domain"
)

// Merge-tag date and time layouts.
const (
	DateLayout        = "2006-01-02"
	DisplayDateLayout = "Mon, 2 Jan 2006"
	TimeLayout        = "15:04"
	DateTimeLayout    = "2 Jan 2006 15:04"
)

// SystemTagPrefix marks keys owned by the binder. Question-derived tags never
// use or override them.
const SystemTagPrefix = "sys_"

// BinderOptions names the questions the calculated stay fields read from.
type BinderOptions struct {
	// CheckInOutKey is a combined date-range question. It takes priority
	// over the separate check-in and check-out questions.
	CheckInOutKey string
	CheckInKey    string
	CheckOutKey   string
	// Location is used for the current date/time snapshot. Defaults to UTC.
	Location *time.Location
}

// DefaultBinderOptions returns the question keys used by the stock booking form.
func DefaultBinderOptions() BinderOptions {
	return BinderOptions{
		CheckInOutKey: "check_in_out",
		CheckInKey:    "check_in_date",
		CheckOutKey:   "check_out_date",
		Location:      time.UTC,
	}
}

// Binder assembles the flat merge-tag bag for a booking.
type Binder struct {
	opts BinderOptions
}

// NewBinder creates a binder; zero-valued options fall back to the defaults.
func NewBinder(opts BinderOptions) *Binder {
	def := DefaultBinderOptions()
	if opts.CheckInOutKey == "" {
		opts.CheckInOutKey = def.CheckInOutKey
	}
	if opts.CheckInKey == "" {
		opts.CheckInKey = def.CheckInKey
	}
	if opts.CheckOutKey == "" {
		opts.CheckOutKey = def.CheckOutKey
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	return &Binder{opts: opts}
}

// Bind builds the data bag from the booking snapshot, the question catalog
// and the booking's answers. now is the "current date/time" snapshot; the
// result depends on nothing else.
func (b *Binder) Bind(snap *domain.BookingSnapshot, questions []domain.Question, idx *Index, now time.Time) (map[string]any, error) {
	if snap == nil {
		return nil, &BindError{Err: ErrNoBooking}
	}
	if idx == nil {
		idx = NewIndex(nil)
	}

	bag := make(map[string]any, 48+2*idx.Len())

	// System metadata
	bag["sys_booking_id"] = snap.ID
	bag["sys_booking_uuid"] = snap.UUID
	bag["sys_booking_status"] = string(snap.Status)
	bag["sys_created_at"] = formatTimestamp(snap.CreatedAt)
	bag["sys_updated_at"] = formatTimestamp(snap.UpdatedAt)

	// Guest
	bag["guest_first_name"] = strings.TrimSpace(snap.Guest.FirstName)
	bag["guest_last_name"] = strings.TrimSpace(snap.Guest.LastName)
	bag["guest_name"] = snap.Guest.FullName()
	bag["guest_email"] = strings.TrimSpace(snap.Guest.Email)
	bag["guest_phone"] = strings.TrimSpace(snap.Guest.Phone)

	// Booking
	bag["booking_reference"] = snap.Reference
	bag["booking_type"] = snap.Type
	bag["alternate_contact_name"] = strings.TrimSpace(snap.AlternateContactName)
	bag["alternate_contact_email"] = strings.TrimSpace(snap.AlternateContactEmail)
	bag["alternate_contact_phone"] = strings.TrimSpace(snap.AlternateContactPhone)

	b.bindRooms(bag, snap.Rooms)
	b.bindStay(bag, snap, idx)
	b.bindNow(bag, now)

	// Question-derived tags fill in around the fixed groups above.
	for _, q := range questions {
		tag := strings.TrimSpace(q.MergeTag)
		if tag == "" {
			continue
		}
		if rec, ok := idx.Resolve(q.Key, q.Text); ok {
			setIfAbsent(bag, tag, FormatAnswer(rec.Value))
		} else {
			setIfAbsent(bag, tag, "")
		}
	}
	for _, rec := range idx.Records() {
		val := FormatAnswer(rec.Value)
		if key := strings.TrimSpace(rec.QuestionKey); key != "" {
			setIfAbsent(bag, key, val)
		}
		if s := SanitizeTag(rec.QuestionText); s != "" {
			setIfAbsent(bag, "q_"+s, val)
		}
	}

	return bag, nil
}

func (b *Binder) bindRooms(bag map[string]any, rooms []domain.RoomAllocation) {
	var adults, children, infants int
	list := make([]map[string]any, 0, len(rooms))
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		adults += r.Adults
		children += r.Children
		infants += r.Infants
		list = append(list, map[string]any{
			"name":     r.Name,
			"type":     r.Type,
			"adults":   r.Adults,
			"children": r.Children,
			"infants":  r.Infants,
			"guests":   r.Guests(),
		})
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	bag["rooms"] = list
	bag["room_count"] = len(rooms)
	bag["room_names"] = names
	bag["total_adults"] = adults
	bag["total_children"] = children
	bag["total_infants"] = infants
	bag["total_guests"] = adults + children + infants
	bag["guest_summary"] = GuestSummary(adults, children, infants)
}

func (b *Binder) bindStay(bag map[string]any, snap *domain.BookingSnapshot, idx *Index) {
	in, out := b.stayDates(snap, idx)
	bag["check_in_date"] = ""
	bag["check_out_date"] = ""
	if in != nil {
		bag["check_in_date"] = in.Format(DisplayDateLayout)
	}
	if out != nil {
		bag["check_out_date"] = out.Format(DisplayDateLayout)
	}
	if in == nil || out == nil {
		return
	}
	nights := int(out.Sub(*in).Hours() / 24)
	if nights < 0 {
		return
	}
	bag["nights"] = nights
	bag["stay_duration"] = StayDuration(nights)
}

func (b *Binder) bindNow(bag map[string]any, now time.Time) {
	local := now.In(b.opts.Location)
	bag["current_date"] = local.Format(DisplayDateLayout)
	bag["current_time"] = local.Format(TimeLayout)
	bag["current_datetime"] = local.Format(DateTimeLayout)
}

// stayDates prefers the combined date-range answer, then the separate
// check-in/check-out answers, then the dates stored on the booking.
func (b *Binder) stayDates(snap *domain.BookingSnapshot, idx *Index) (*time.Time, *time.Time) {
	if rec, ok := idx.ByKey(b.opts.CheckInOutKey); ok {
		if in, out, ok := ParseDateRange(rec.Value); ok {
			return &in, &out
		}
	}

	var in, out *time.Time
	if rec, ok := idx.ByKey(b.opts.CheckInKey); ok {
		if t, ok := parseDateValue(rec.Value); ok {
			in = &t
		}
	}
	if rec, ok := idx.ByKey(b.opts.CheckOutKey); ok {
		if t, ok := parseDateValue(rec.Value); ok {
			out = &t
		}
	}
	if in == nil && snap.CheckIn != nil {
		t := dateOnly(*snap.CheckIn)
		in = &t
	}
	if out == nil && snap.CheckOut != nil {
		t := dateOnly(*snap.CheckOut)
		out = &t
	}
	return in, out
}

// FormatAnswer renders a stored answer for templates: booleans become
// "Yes"/"No", arrays stay arrays, everything else is a trimmed string.
func FormatAnswer(raw any) any {
	switch v := raw.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") {
			var items []any
			if err := json.Unmarshal([]byte(s), &items); err == nil {
				return stringList(items)
			}
		}
		return s
	case []any:
		return stringList(v)
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		return v
	default:
		return strings.TrimSpace(toString(v))
	}
}

func stringList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if s := strings.TrimSpace(toString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SanitizeTag turns free question text into a merge-tag friendly name:
// lowercase with runs of other characters collapsed to underscores.
func SanitizeTag(text string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimRight(sb.String(), "_")
}

// GuestSummary renders "2 adults, 1 child". Zero groups are omitted.
func GuestSummary(adults, children, infants int) string {
	var parts []string
	if adults > 0 {
		parts = append(parts, plural(adults, "adult", "adults"))
	}
	if children > 0 {
		parts = append(parts, plural(children, "child", "children"))
	}
	if infants > 0 {
		parts = append(parts, plural(infants, "infant", "infants"))
	}
	return strings.Join(parts, ", ")
}

// StayDuration renders a night count as "1 night" or "N nights".
func StayDuration(nights int) string {
	return plural(nights, "night", "nights")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

func setIfAbsent(bag map[string]any, key string, val any) {
	if key == "" || strings.HasPrefix(key, SystemTagPrefix) {
		return
	}
	if _, exists := bag[key]; exists {
		return
	}
	bag[key] = val
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
