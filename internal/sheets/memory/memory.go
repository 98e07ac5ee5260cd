// Package memory is an in-process prediction exporter used when no Google
// Sheets destination is configured, and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

type Store struct {
	mu    sync.Mutex
	items []core.PredictionRecord
	index map[int64]int
}

var _ ports.PredictionExporter = (*Store)(nil)

func New() *Store {
	return &Store{index: make(map[int64]int)}
}

// Export stores rec and returns a synthetic row reference. Exporting the
// same ID again replaces the earlier row.
func (s *Store) Export(_ context.Context, rec core.PredictionRecord) (string, error) {
	if rec.ID == 0 {
		return "", errors.New("prediction has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Categories = rec.Categories.Clone()
	rec.Advice = append([]string(nil), rec.Advice...)

	if i, ok := s.index[rec.ID]; ok {
		s.items[i] = rec
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.items = append(s.items, rec)
	s.index[rec.ID] = len(s.items) - 1
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Exported returns a copy of everything exported so far, in export order.
func (s *Store) Exported() []core.PredictionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PredictionRecord(nil), s.items...)
}
