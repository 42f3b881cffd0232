package viewer

import "time"

// Alert is one user-visible message.
type Alert struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// AlertLog keeps the most recent alerts. Owned by the loop.
type AlertLog struct {
	max   int
	items []Alert
	now   func() time.Time
}

func NewAlertLog(max int) *AlertLog {
	if max <= 0 {
		max = 50
	}
	return &AlertLog{max: max, now: time.Now}
}

func (a *AlertLog) Alert(msg string) {
	a.items = append(a.items, Alert{Time: a.now(), Message: msg})
	if len(a.items) > a.max {
		a.items = a.items[len(a.items)-a.max:]
	}
}

// Recent returns the stored alerts, oldest first.
func (a *AlertLog) Recent() []Alert {
	return append([]Alert(nil), a.items...)
}
