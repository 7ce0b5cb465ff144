package memory

import (
	"context"
	"sort"
	"sync"

	"fincontrol/internal/core"
	ports "fincontrol/internal/sheets"
)

// Mirror keeps mirror rows in process. Used for local development and tests.
type Mirror struct {
	mu   sync.Mutex
	rows map[int64][][]interface{}
}

var _ ports.TransactionMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{rows: make(map[int64][][]interface{})}
}

func (m *Mirror) Upsert(_ context.Context, t core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := ports.Rows(t)
	if len(rows) == 0 {
		delete(m.rows, t.ID)
		return nil
	}
	m.rows[t.ID] = rows
	return nil
}

func (m *Mirror) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// Rows returns the mirrored rows ordered by transaction id, header first.
func (m *Mirror) Rows() [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := [][]interface{}{ports.Header}
	for _, id := range ids {
		out = append(out, m.rows[id]...)
	}
	return out
}

// Has reports whether rows exist for the transaction.
func (m *Mirror) Has(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok
}
