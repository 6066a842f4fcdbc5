package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/faucetdb/widgets/internal/model"
)

// WidgetWriter is the storage WidgetCreator needs. *store.Store implements it.
type WidgetWriter interface {
	GetWidgetStatusByName(ctx context.Context, name string) (*model.WidgetStatus, error)
	CreateWidget(ctx context.Context, w *model.Widget) error
}

// WidgetCreator creates widgets in the Fresh status.
type WidgetCreator struct {
	store  WidgetWriter
	logger *slog.Logger
}

// WidgetResult reports whether the widget was saved. When Created is false
// the widget failed validation and Widget.Validate explains why.
type WidgetResult struct {
	Created bool
	Widget  *model.Widget
}

func NewWidgetCreator(store WidgetWriter, logger *slog.Logger) *WidgetCreator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WidgetCreator{store: store, logger: logger}
}

// CreateWidget assigns the Fresh status to w and saves it if it is valid. A
// missing Fresh status is an error (run `widgets db seed`); an invalid widget
// is not.
func (c *WidgetCreator) CreateWidget(ctx context.Context, w *model.Widget) (WidgetResult, error) {
	status, err := c.store.GetWidgetStatusByName(ctx, model.StatusFresh)
	if err != nil {
		return WidgetResult{Widget: w}, fmt.Errorf("look up %s status: %w", model.StatusFresh, err)
	}
	w.WidgetStatusID = status.ID
	w.Status = status.Name

	if !w.Valid() {
		return WidgetResult{Created: false, Widget: w}, nil
	}
	if err := c.store.CreateWidget(ctx, w); err != nil {
		return WidgetResult{Widget: w}, err
	}

	c.logger.Info("widget created", "widget_id", w.ID, "name", w.Name)
	return WidgetResult{Created: true, Widget: w}, nil
}
