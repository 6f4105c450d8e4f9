package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	domainrepo "github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
)

// MemoryAlertStore implements AlertStore in process memory. Used when
// Redis is disabled and by tests.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*models.Alert
}

// NewMemoryAlertStore creates an in-memory alert store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*models.Alert)}
}

var _ domainrepo.AlertStore = (*MemoryAlertStore)(nil)

func (s *MemoryAlertStore) Create(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *MemoryAlertStore) ListByOwner(ctx context.Context, owner string) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Alert
	for _, a := range s.alerts {
		if a.UserID == owner {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryAlertStore) LoadActiveBySymbol(ctx context.Context, symbol string) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Alert
	for _, a := range s.alerts {
		if a.Symbol == symbol && a.Active && !a.Triggered {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryAlertStore) MarkTriggeredBatch(ctx context.Context, ids []string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	confirmed := make([]string, 0, len(ids))
	for _, id := range ids {
		a, ok := s.alerts[id]
		if !ok || !a.Active || a.Triggered {
			continue
		}
		a.Active = false
		a.Triggered = true
		ts := at
		a.TriggeredAt = &ts
		confirmed = append(confirmed, id)
	}
	return confirmed, nil
}

func (s *MemoryAlertStore) Deactivate(ctx context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.UserID != owner {
		return models.ErrAlertNotFound
	}
	a.Active = false
	return nil
}

func (s *MemoryAlertStore) Delete(ctx context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.UserID != owner {
		return models.ErrAlertNotFound
	}
	delete(s.alerts, id)
	return nil
}

func (s *MemoryAlertStore) CountActive(ctx context.Context, owner string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if a.UserID == owner && a.Active && !a.Triggered {
			n++
		}
	}
	return n, nil
}
