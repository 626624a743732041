package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/xela07ax/demonlist-history/internal/domain"
)

// FixtureSource отдает заранее заготовленные журналы из памяти.
// Используется в тестах и в офлайн-режиме CLI.
type FixtureSource struct {
	mu      sync.RWMutex
	logs    map[int][]domain.AuditEvent
	latency time.Duration // Имитация сетевой задержки
	err     error         // Если задана — возвращается на каждый вызов
	calls   int
}

func NewFixtureSource(logs map[int][]domain.AuditEvent) *FixtureSource {
	if logs == nil {
		logs = make(map[int][]domain.AuditEvent)
	}
	return &FixtureSource{logs: logs}
}

// LoadFixtureFile читает JSON вида {"<demon_id>": [<audit event>, ...]}.
func LoadFixtureFile(path string) (*FixtureSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}

	var raw map[string][]domain.AuditEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("fixture: decode %s: %w", path, err)
	}

	logs := make(map[int][]domain.AuditEvent, len(raw))
	for key, events := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("fixture: demon id %q: %w", key, err)
		}
		logs[id] = events
	}
	return NewFixtureSource(logs), nil
}

func (s *FixtureSource) Set(demonID int, events []domain.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[demonID] = events
}

func (s *FixtureSource) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

func (s *FixtureSource) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls возвращает число вызовов источника.
func (s *FixtureSource) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *FixtureSource) Movements(ctx context.Context, demonID int) ([]domain.AuditEvent, error) {
	s.mu.Lock()
	s.calls++
	latency, failure := s.latency, s.err
	events, ok := s.logs[demonID]
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, fmt.Errorf("fixture: demon %d: %w", demonID, domain.ErrDemonNotFound)
	}

	out := make([]domain.AuditEvent, len(events))
	copy(out, events)
	return out, nil
}
