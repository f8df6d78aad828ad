// Package session stores client-side, session-scoped values behind a small
// key-value port so the engine never touches ambient storage directly.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/voicetel/helpdesk-board/internal/models"
)

// State is the key-value port. Absent keys report ok=false, not an error.
type State interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

const (
	criteriaKey     = "filter.criteria"
	viewedKeyPrefix = "column.viewed."
)

// Memory is an in-process State.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}

// SaveCriteria persists the last applied filter. Zero criteria delete the key.
func SaveCriteria(ctx context.Context, st State, c models.Criteria) error {
	if c.IsZero() {
		return st.Delete(ctx, criteriaKey)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode criteria: %w", err)
	}
	return st.Set(ctx, criteriaKey, string(data))
}

// LoadCriteria returns the persisted filter, or zero criteria when none is
// stored or the stored value no longer decodes.
func LoadCriteria(ctx context.Context, st State) (models.Criteria, error) {
	v, ok, err := st.Get(ctx, criteriaKey)
	if err != nil || !ok {
		return models.Criteria{}, err
	}
	var c models.Criteria
	if err := json.Unmarshal([]byte(v), &c); err != nil {
		return models.Criteria{}, nil
	}
	return c, nil
}

func viewedKey(col models.Column) string {
	return viewedKeyPrefix + col.String()
}

func SaveViewedAt(ctx context.Context, st State, col models.Column, at time.Time) error {
	return st.Set(ctx, viewedKey(col), at.UTC().Format(time.RFC3339Nano))
}

// LoadViewedAt returns the last time col was viewed; ok is false when the
// value is absent or unreadable.
func LoadViewedAt(ctx context.Context, st State, col models.Column) (time.Time, bool, error) {
	v, ok, err := st.Get(ctx, viewedKey(col))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	at, perr := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
	if perr != nil {
		return time.Time{}, false, nil
	}
	return at, true, nil
}
