// Package storage persists governance state so that domains, integrations,
// reviews and compliance records survive process restarts with their ids and
// statuses intact.
//
// The engine behind the Store interface is a collaborator concern: the
// default file store writes a single JSON snapshot, and deployments with
// heavier durability needs can supply their own implementation.
package storage

import (
	"context"

	"github.com/polisai/govhub/pkg/domain"
	"github.com/polisai/govhub/pkg/registry"
)

// Snapshot is the complete persisted state of the governance hub.
type Snapshot struct {
	Topology           registry.TopologySnapshot `json:"topology"`
	Integrations       []domain.Integration      `json:"integrations"`
	Reviews            []domain.Review           `json:"reviews"`
	ComplianceRecords  []domain.ComplianceRecord `json:"compliance_records"`
	LastIntegrationSeq uint64                    `json:"last_integration_seq"`
}

// Store persists and restores governance snapshots.
type Store interface {
	// Save atomically replaces the persisted snapshot.
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns the persisted snapshot, or (nil, nil) when none exists.
	Load(ctx context.Context) (*Snapshot, error)
	// Close releases underlying resources.
	Close() error
}
