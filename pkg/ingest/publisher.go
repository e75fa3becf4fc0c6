package ingest

import (
	"context"

	"meshnode/pkg/models"
)

// Publisher re-broadcasts accepted messages to the peer network. Purely a
// propagation-speed optimization; failures never affect correctness.
type Publisher interface {
	Publish(ctx context.Context, m *models.Message) error
}

// NopPublisher drops everything. Used when no P2P collaborator is wired.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.Message) error { return nil }
