package models

// Discount window status values.
const (
	DiscountWindowActive   = "Active"
	DiscountWindowInactive = "Inactive"
)

// RateGroup carries the hourly price assigned to devices.
type RateGroup struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// DiscountWindow is a recurring weekday and clock range overriding the hourly rate.
// StartTime and EndTime are zero-padded 24h "HH:MM" strings.
type DiscountWindow struct {
	ID                 string   `json:"id"`
	GroupID            string   `json:"group"`
	Status             string   `json:"status"`
	Day                string   `json:"day"`
	StartTime          string   `json:"start_time"`
	EndTime            string   `json:"end_time"`
	DiscountPercentage *float64 `json:"discount_percentage"`
	FixedRate          *float64 `json:"fixed_rate"`
}

// Covers reports whether the clock string falls inside the window, compared lexically.
func (w DiscountWindow) Covers(clock string) bool {
	return w.StartTime <= clock && clock <= w.EndTime
}
