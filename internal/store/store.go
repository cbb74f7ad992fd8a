// Package store persists session slots and result artifacts.
package store

import (
	"context"
	"time"

	"github.com/pnguyenfetchai/study-assistant/internal/domain"
)

// Store is the persistence interface used by agents and the ingress.
type Store interface {
	// Session slots, keyed by (agent, key). Put overwrites the existing
	// slot; slots never queue.
	PutSlot(ctx context.Context, slot *domain.SessionSlot) error
	GetSlot(ctx context.Context, agent, key string) (*domain.SessionSlot, error)
	ClearSlot(ctx context.Context, agent, key string) error
	ClearAgent(ctx context.Context, agent string) error

	// Result artifacts polled by the ingress boundary.
	PutResult(ctx context.Context, result *domain.Result) error
	LatestResult(ctx context.Context, userAddr string, after time.Time) (*domain.Result, error)

	Close() error
}
