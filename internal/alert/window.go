package alert

import (
	"time"

	"vitals-monitor/internal/models"
)

// Window is the recent-alert memory of one patient, oldest first. Methods
// return a new Window and leave the receiver untouched.
type Window struct {
	Alerts []models.AlertRecord `json:"alerts"`
}

// lastByKey returns when an alert with key was last recorded.
func (w Window) lastByKey(key string) (time.Time, bool) {
	for i := len(w.Alerts) - 1; i >= 0; i-- {
		if w.Alerts[i].Key == key {
			return w.Alerts[i].CreatedAt, true
		}
	}
	return time.Time{}, false
}

// Append adds records, drops those older than retention (when positive) and
// keeps at most maxSize of the newest (when positive).
func (w Window) Append(records []models.AlertRecord, maxSize int, retention time.Duration, now time.Time) Window {
	out := make([]models.AlertRecord, 0, len(w.Alerts)+len(records))
	for _, a := range w.Alerts {
		if retention > 0 && now.Sub(a.CreatedAt) > retention {
			continue
		}
		out = append(out, a)
	}
	out = append(out, records...)
	if maxSize > 0 && len(out) > maxSize {
		out = out[len(out)-maxSize:]
	}
	return Window{Alerts: out}
}

// Acknowledge marks the alert with id acknowledged. The bool reports whether
// the window held it.
func (w Window) Acknowledge(id string) (Window, bool) {
	found := false
	out := make([]models.AlertRecord, len(w.Alerts))
	copy(out, w.Alerts)
	for i := range out {
		if out[i].ID == id {
			out[i].Acknowledged = true
			found = true
		}
	}
	return Window{Alerts: out}, found
}

func (w Window) Unacknowledged() []models.AlertRecord {
	var out []models.AlertRecord
	for _, a := range w.Alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out
}

func (w Window) Len() int { return len(w.Alerts) }
