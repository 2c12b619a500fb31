package application

import (
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/google/uuid"
)

type AuditService struct {
	repo domain.AuditRepository
	mu   sync.Mutex
	now  func() time.Time
}

// Compile-time check that AuditService implements AuditLogger
var _ domain.AuditLogger = (*AuditService)(nil)

func NewAuditService(repo domain.AuditRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

func (s *AuditService) Log(action string, actor string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Get the latest event to continue the hash chain
	events, err := s.repo.LoadEvents()
	if err != nil {
		return fmt.Errorf("load audit log: %w", err)
	}
	prevHash := ""
	if len(events) > 0 {
		prevHash = events[len(events)-1].Hash
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Timestamp: s.now(),
		Action:    action,
		Actor:     actor,
		PrevHash:  prevHash,
	}
	for k, v := range metadata {
		if id, ok := v.(string); ok && k == "project_id" {
			event.ProjectID = id
			continue
		}
		if event.Metadata == nil {
			event.Metadata = make(map[string]interface{}, len(metadata))
		}
		event.Metadata[k] = v
	}
	event.Hash = event.CalculateHash()

	return s.repo.RecordEvent(event)
}

func (s *AuditService) GetTimeline() ([]domain.Event, error) {
	return s.repo.LoadEvents()
}

// History returns the audit events of one project in recording order.
func (s *AuditService) History(projectID string) ([]domain.Event, error) {
	events, err := s.repo.LoadEvents()
	if err != nil {
		return nil, err
	}
	var out []domain.Event
	for _, e := range events {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *AuditService) VerifyIntegrity() ([]string, error) {
	events, err := s.repo.LoadEvents()
	if err != nil {
		return nil, err
	}

	var violations []string
	lastHash := ""

	for i, e := range events {
		if e.PrevHash != lastHash {
			violations = append(violations, fmt.Sprintf("Event %d (%s): PrevHash mismatch. Audit trail broken.", i, e.ID))
		}

		expected := e.CalculateHash()
		if e.Hash != expected {
			violations = append(violations, fmt.Sprintf("Event %d (%s): Content hash mismatch. Possible tampering.", i, e.ID))
		}

		lastHash = e.Hash
	}

	return violations, nil
}
