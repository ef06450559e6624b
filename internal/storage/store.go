package storage

import (
	"context"
	"errors"

	"github.com/joschabach/micropsi2-sub002/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists whole nets as versioned records keyed by net uid.
type Store interface {
	Init(ctx context.Context) error
	SaveNet(ctx context.Context, record model.NetRecord) error
	GetNet(ctx context.Context, uid string) (model.NetRecord, bool, error)
	ListNets(ctx context.Context) ([]model.NetSummary, error)
	DeleteNet(ctx context.Context, uid string) error
}

func summarize(record model.NetRecord) model.NetSummary {
	return model.NetSummary{
		UID:   record.UID,
		Name:  record.Name,
		Step:  record.Step,
		Nodes: len(record.Nodes),
		Links: len(record.Links),
	}
}
