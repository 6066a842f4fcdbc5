package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/faucetdb/widgets/internal/model"
)

const widgetSelect = `SELECT w.id, w.name, w.price_cents, w.widget_status_id, s.name AS status_name,
		w.created_at, w.updated_at
	FROM widgets w
	JOIN widget_statuses s ON s.id = w.widget_status_id`

// ListWidgets returns all widgets ordered by name.
func (s *Store) ListWidgets(ctx context.Context) ([]model.Widget, error) {
	widgets := []model.Widget{}
	if err := s.db.SelectContext(ctx, &widgets, widgetSelect+" ORDER BY w.name, w.id"); err != nil {
		return nil, fmt.Errorf("list widgets: %w", err)
	}
	return widgets, nil
}

// GetWidget returns a widget by ID together with its status name.
func (s *Store) GetWidget(ctx context.Context, id int64) (*model.Widget, error) {
	var w model.Widget
	if err := s.db.GetContext(ctx, &w, s.db.Rebind(widgetSelect+" WHERE w.id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get widget: %w", err)
	}
	return &w, nil
}

// CreateWidget inserts w. The ID and timestamps are populated after a
// successful insert. Validation is the caller's job.
func (s *Store) CreateWidget(ctx context.Context, w *model.Widget) error {
	now := s.timestamp()
	id, err := s.insert(ctx, s.db, "widgets",
		[]string{"name", "price_cents", "widget_status_id", "created_at", "updated_at"},
		w.Name, w.PriceCents, w.WidgetStatusID, now, now)
	if err != nil {
		return fmt.Errorf("insert widget: %w", err)
	}
	w.ID = id
	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

// GetWidgetStatusByName returns the status called name, or ErrNotFound.
func (s *Store) GetWidgetStatusByName(ctx context.Context, name string) (*model.WidgetStatus, error) {
	var st model.WidgetStatus
	if err := s.db.GetContext(ctx, &st, s.db.Rebind("SELECT id, name FROM widget_statuses WHERE name = ?"), name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get widget status: %w", err)
	}
	return &st, nil
}

// EnsureWidgetStatus returns the status called name, creating it if needed.
func (s *Store) EnsureWidgetStatus(ctx context.Context, name string) (*model.WidgetStatus, error) {
	st, err := s.GetWidgetStatusByName(ctx, name)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id, err := s.insert(ctx, s.db, "widget_statuses", []string{"name"}, name)
	if err != nil {
		// Lost a race with another writer; the row exists now.
		if s.dialect.isUniqueViolation(err) {
			return s.GetWidgetStatusByName(ctx, name)
		}
		return nil, fmt.Errorf("insert widget status: %w", err)
	}
	return &model.WidgetStatus{ID: id, Name: name}, nil
}

// CreateWidgetRating stores a rating for an existing widget. It fails with
// ErrNotFound if the widget does not exist.
func (s *Store) CreateWidgetRating(ctx context.Context, r *model.WidgetRating) error {
	if err := r.Validate(); err != nil {
		return err
	}

	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM widgets WHERE id = ?"), r.WidgetID); err != nil {
		return fmt.Errorf("check widget: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	r.CreatedAt = s.timestamp()
	id, err := s.insert(ctx, s.db, "widget_ratings",
		[]string{"widget_id", "rating", "created_at"},
		r.WidgetID, r.Rating, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert widget rating: %w", err)
	}
	r.ID = id
	return nil
}

// ListWidgetRatings returns the ratings left for a widget, oldest first.
func (s *Store) ListWidgetRatings(ctx context.Context, widgetID int64) ([]model.WidgetRating, error) {
	ratings := []model.WidgetRating{}
	q := s.db.Rebind("SELECT id, widget_id, rating, created_at FROM widget_ratings WHERE widget_id = ? ORDER BY created_at, id")
	if err := s.db.SelectContext(ctx, &ratings, q, widgetID); err != nil {
		return nil, fmt.Errorf("list widget ratings: %w", err)
	}
	return ratings, nil
}
