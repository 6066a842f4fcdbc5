package model

import (
	"errors"
	"strings"
	"time"
)

// StatusFresh is assigned to every newly created widget.
const StatusFresh = "Fresh"

// DefaultWidgetStatuses are the statuses seeded by `widgets db seed`.
var DefaultWidgetStatuses = []string{StatusFresh, "Approved", "Archived"}

var (
	ErrWidgetNameRequired = errors.New("name is required")
	ErrWidgetPrice        = errors.New("price_cents must be greater than zero")
	ErrRatingOutOfRange   = errors.New("rating must be between 1 and 5")
	ErrWidgetIDRequired   = errors.New("widget_id is required")
)

// WidgetStatus is a named lifecycle state a widget can be in.
type WidgetStatus struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Widget is the main resource exposed by the read endpoints.
type Widget struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	PriceCents     int64     `json:"price_cents" db:"price_cents"`
	WidgetStatusID int64     `json:"widget_status_id" db:"widget_status_id"`
	Status         string    `json:"status" db:"status_name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Validate returns every validation failure for the widget, or nil when the
// widget can be saved.
func (w *Widget) Validate() []error {
	var errs []error
	if strings.TrimSpace(w.Name) == "" {
		errs = append(errs, ErrWidgetNameRequired)
	}
	if w.PriceCents <= 0 {
		errs = append(errs, ErrWidgetPrice)
	}
	return errs
}

// Valid is shorthand for len(w.Validate()) == 0.
func (w *Widget) Valid() bool {
	return len(w.Validate()) == 0
}

// WidgetRating is a single rating left for a widget.
type WidgetRating struct {
	ID        int64     `json:"id" db:"id"`
	WidgetID  int64     `json:"widget_id" db:"widget_id"`
	Rating    int       `json:"rating" db:"rating"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Validate checks a rating before it is stored.
func (r *WidgetRating) Validate() error {
	if r.WidgetID <= 0 {
		return ErrWidgetIDRequired
	}
	if r.Rating < 1 || r.Rating > 5 {
		return ErrRatingOutOfRange
	}
	return nil
}
