package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Session status values.
const (
	SessionStatusBooked   = "Booked"
	SessionStatusActive   = "Active"
	SessionStatusOccupied = "Occupied"
	SessionStatusExtended = "Extended"
	SessionStatusClosed   = "Closed"
)

// OpenSessionStatuses lists the statuses treated as currently open.
var OpenSessionStatuses = []string{
	SessionStatusBooked,
	SessionStatusActive,
	SessionStatusOccupied,
	SessionStatusExtended,
}

// Session is a billable, time-boxed usage grant binding a user to a device.
type Session struct {
	ID             string    `json:"id,omitempty"`
	DeviceID       string    `json:"device"`
	UserID         string    `json:"user"`
	InTime         time.Time `json:"in_time"`
	OutTime        time.Time `json:"out_time"`
	Duration       int       `json:"duration"`
	Status         string    `json:"status"`
	SessionTotal   float64   `json:"session_total"`
	TotalAmount    float64   `json:"total_amount"`
	AmountPaid     float64   `json:"amount_paid"`
	DiscountAmount float64   `json:"discount_amount"`
	DiscountRate   float64   `json:"discount_rate"`
	PaymentMode    string    `json:"payment_mode,omitempty"`
	CashAmount     float64   `json:"cash_amount"`
	UPIAmount      float64   `json:"upi_amount"`
}

// IsOpen reports whether the status counts as an open session.
func (s *Session) IsOpen() bool {
	for _, status := range OpenSessionStatuses {
		if s.Status == status {
			return true
		}
	}
	return false
}

// IsClosed reports whether the session reached its terminal status.
func (s *Session) IsClosed() bool {
	return s.Status == SessionStatusClosed
}

// DurationHours returns the billable span in hours. The stored duration in minutes wins;
// otherwise the span between in and out time is used.
func (s *Session) DurationHours() float64 {
	if s.Duration > 0 {
		return float64(s.Duration) / 60
	}
	span := s.OutTime.Sub(s.InTime)
	if span <= 0 {
		return 0
	}
	return span.Hours()
}

// SpanMinutes returns out_time - in_time in whole minutes.
func (s *Session) SpanMinutes() int {
	return int(math.Round(s.OutTime.Sub(s.InTime).Minutes()))
}

var storeTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseStoreTime accepts RFC 3339 and the store's space separated layout. Empty is zero time.
func ParseStoreTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range storeTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("models: unrecognised time %q", v)
}

// UnmarshalJSON decodes in_time and out_time in either store layout.
func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	aux := struct {
		*plain
		InTime  string `json:"in_time"`
		OutTime string `json:"out_time"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if s.InTime, err = ParseStoreTime(aux.InTime); err != nil {
		return err
	}
	if s.OutTime, err = ParseStoreTime(aux.OutTime); err != nil {
		return err
	}
	return nil
}
