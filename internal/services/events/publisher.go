// Package events announces finished analyses to downstream claim processing.
package events

import (
	"context"

	"github.com/phambaophuc/vehicle-damage/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, event *models.AnalysisEvent) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.AnalysisEvent) error { return nil }
