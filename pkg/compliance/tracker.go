// Package compliance tracks which governance requirements each governed
// entity (domain or integration) has satisfied.
//
// Percentages are recomputed from the current requirement maps on every
// read. Nothing is cached, so a summary can never be stale relative to the
// last update.
package compliance

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polisai/govhub/pkg/domain"
)

// RecordID derives the deterministic record id for an entity scoped to a
// domain. The same (entity_type, entity_id, domain) triple always maps to
// the same id.
func RecordID(entityType, entityID, domainCode string) string {
	return fmt.Sprintf("CMP-%s-%s@%s", entityType, entityID, domainCode)
}

// Summary aggregates compliance over a set of records.
type Summary struct {
	Domain       string                            `json:"domain,omitempty"`
	Records      int                               `json:"records"`
	Percentage   float64                           `json:"percentage"`
	StatusCounts map[domain.ComplianceStatus]int   `json:"status_counts"`
	ByCategory   map[domain.ComplianceCategory]int `json:"by_category"`
}

// Tracker is the in-memory compliance record store.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*domain.ComplianceRecord
	logger  *slog.Logger
}

// New creates an empty Tracker.
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		records: make(map[string]*domain.ComplianceRecord),
		logger:  logger,
	}
}

// CreateRecord creates a compliance record seeded with the given requirement
// ids, all unmet. Fails if a record already exists for the (entity, domain)
// pair.
func (t *Tracker) CreateRecord(entityID, entityType, domainCode string, category domain.ComplianceCategory, requirementIDs []string) (string, error) {
	id := RecordID(entityType, entityID, domainCode)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.records[id]; exists {
		return "", fmt.Errorf("create compliance record %q: %w", id, domain.ErrDuplicateRecord)
	}

	reqs := make(map[string][]string, len(requirementIDs))
	for _, reqID := range requirementIDs {
		reqs[reqID] = nil
	}

	t.records[id] = &domain.ComplianceRecord{
		ID:           id,
		EntityID:     entityID,
		EntityType:   entityType,
		Domain:       domainCode,
		Category:     category,
		Requirements: reqs,
		UpdatedAt:    time.Now(),
	}

	t.logger.Info("Compliance record created", "record_id", id, "category", category, "requirements", len(requirementIDs))
	return id, nil
}

// Update replaces the satisfied criteria for one requirement. Resubmission
// is last-write-wins per requirement; requirements themselves are only ever
// added, never removed.
func (t *Tracker) Update(recordID, requirementID string, criteriaMet []string, notes string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[recordID]
	if !exists {
		return fmt.Errorf("update compliance %q: %w", recordID, domain.ErrUnknownRecord)
	}

	rec.Requirements[requirementID] = append([]string(nil), criteriaMet...)
	if notes != "" {
		if rec.Notes == nil {
			rec.Notes = make(map[string]string)
		}
		rec.Notes[requirementID] = notes
	}
	rec.UpdatedAt = time.Now()

	t.logger.Debug("Compliance updated", "record_id", recordID, "requirement", requirementID, "criteria_met", len(criteriaMet))
	return nil
}

// Record returns a copy of the record with the given id.
func (t *Tracker) Record(recordID string) (domain.ComplianceRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, exists := t.records[recordID]
	if !exists {
		return domain.ComplianceRecord{}, fmt.Errorf("compliance record %q: %w", recordID, domain.ErrUnknownRecord)
	}
	return copyRecord(rec), nil
}

// DomainSummary recomputes the aggregate compliance for one domain.
func (t *Tracker) DomainSummary(domainCode string) Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summarize(domainCode)
}

// EcosystemSummary recomputes the aggregate compliance across all domains.
func (t *Tracker) EcosystemSummary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summarize("")
}

// Remove deletes a record. It exists solely so the governance manager can
// roll back the record of an entity whose creation failed; records of live
// entities are never removed.
func (t *Tracker) Remove(recordID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, recordID)
}

// Export returns deep copies of all records for persistence.
func (t *Tracker) Export() []domain.ComplianceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.ComplianceRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, copyRecord(rec))
	}
	return out
}

// Restore replaces the tracker state from a persisted snapshot.
func (t *Tracker) Restore(records []domain.ComplianceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = make(map[string]*domain.ComplianceRecord, len(records))
	for i := range records {
		rec := copyRecord(&records[i])
		t.records[rec.ID] = &rec
	}
}

// summarize walks current requirement maps; callers hold at least a read lock.
func (t *Tracker) summarize(domainCode string) Summary {
	s := Summary{
		Domain:       domainCode,
		StatusCounts: make(map[domain.ComplianceStatus]int),
		ByCategory:   make(map[domain.ComplianceCategory]int),
	}

	var total float64
	evaluated := 0
	for _, rec := range t.records {
		if domainCode != "" && rec.Domain != domainCode {
			continue
		}
		s.Records++
		s.StatusCounts[rec.ComplianceState()]++
		s.ByCategory[rec.Category]++
		if len(rec.Requirements) > 0 {
			total += rec.Percentage()
			evaluated++
		}
	}
	if evaluated > 0 {
		s.Percentage = total / float64(evaluated)
	}
	return s
}

func copyRecord(rec *domain.ComplianceRecord) domain.ComplianceRecord {
	out := *rec
	out.Requirements = make(map[string][]string, len(rec.Requirements))
	for reqID, criteria := range rec.Requirements {
		out.Requirements[reqID] = append([]string(nil), criteria...)
	}
	if rec.Notes != nil {
		out.Notes = make(map[string]string, len(rec.Notes))
		for k, v := range rec.Notes {
			out.Notes[k] = v
		}
	}
	return out
}
