package memory

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hamed0406/tlsprober/internal/domain"
	"github.com/hamed0406/tlsprober/internal/repo"
)

// Store keeps targets, probe history and alert state in process memory.
type Store struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]*domain.Target
	byAddr  map[string]domain.TargetID
	results []*domain.ProbeRecord
	alerts  map[string]repo.AlertRecord
}

func New() *Store {
	return &Store{
		targets: make(map[domain.TargetID]*domain.Target),
		byAddr:  make(map[string]domain.TargetID),
		results: make([]*domain.ProbeRecord, 0, 128),
		alerts:  make(map[string]repo.AlertRecord),
	}
}

func addrKey(t *domain.Target) string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (m *Store) Add(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := addrKey(t)
	if _, ok := m.byAddr[key]; ok {
		return repo.ErrDuplicate
	}
	if t.ID == "" {
		t.ID = repo.NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.targets[t.ID] = t
	m.byAddr[key] = t.ID
	return nil
}

// List returns targets newest first.
func (m *Store) List(ctx context.Context) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) Append(ctx context.Context, r *domain.ProbeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	m.results = append(m.results, r)
	return nil
}

func (m *Store) Latest(ctx context.Context) ([]repo.LatestRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[domain.TargetID]*domain.ProbeRecord)
	for _, r := range m.results {
		cur := latest[r.TargetID]
		if cur == nil || !r.CheckedAt.Before(cur.CheckedAt) {
			latest[r.TargetID] = r
		}
	}

	out := make([]repo.LatestRow, 0, len(latest))
	for tid, r := range latest {
		var lat *float64
		if r.LatencyMS != 0 {
			v := r.LatencyMS
			lat = &v
		}
		row := repo.LatestRow{
			TargetID:  string(tid),
			Status:    r.Status,
			NotAfter:  r.NotAfter,
			LatencyMS: lat,
			Reason:    r.Reason,
			CheckedAt: r.CheckedAt,
		}
		if t := m.targets[tid]; t != nil {
			row.Target = t.Raw
			row.Host = t.Host
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

// ---- AlertStore ----

func (m *Store) Get(ctx context.Context, targetID string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[targetID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) Set(ctx context.Context, targetID string, lastValid bool, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	m.alerts[targetID] = repo.AlertRecord{TargetID: targetID, LastValid: lastValid, LastSentAt: ts}
	return nil
}

var (
	_ repo.TargetStore = (*Store)(nil)
	_ repo.ResultStore = (*Store)(nil)
	_ repo.AlertStore  = (*Store)(nil)
)
