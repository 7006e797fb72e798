package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultDraftTTL is how long an untouched registration draft is kept.
const DefaultDraftTTL = 30 * time.Minute

const draftKeyPrefix = "portal:draft:"

// DraftStore keeps wizard snapshots between requests.
type DraftStore interface {
	Load(ctx context.Context, id string) (*WizardSnapshot, error)
	Save(ctx context.Context, id string, snapshot WizardSnapshot) error
	Delete(ctx context.Context, id string) error
}

// NewDraftID returns a random draft identifier.
func NewDraftID() string {
	return uuid.NewString()
}

type memoryDraft struct {
	snapshot  WizardSnapshot
	expiresAt time.Time
}

// MemoryDraftStore keeps drafts in process. Expired drafts are dropped on
// access and by Sweep.
type MemoryDraftStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	drafts map[string]memoryDraft
}

// NewMemoryDraftStore returns an empty store, ttl <= 0 uses DefaultDraftTTL.
func NewMemoryDraftStore(ttl time.Duration) *MemoryDraftStore {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	return &MemoryDraftStore{
		ttl:    ttl,
		now:    time.Now,
		drafts: map[string]memoryDraft{},
	}
}

func (m *MemoryDraftStore) Load(_ context.Context, id string) (*WizardSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	if !m.now().Before(d.expiresAt) {
		delete(m.drafts, id)
		return nil, ErrDraftNotFound
	}
	snap := d.snapshot
	return &snap, nil
}

func (m *MemoryDraftStore) Save(_ context.Context, id string, snapshot WizardSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[id] = memoryDraft{snapshot: snapshot, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryDraftStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

// Sweep removes every expired draft and returns how many were dropped.
func (m *MemoryDraftStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, d := range m.drafts {
		if !now.Before(d.expiresAt) {
			delete(m.drafts, id)
			removed++
		}
	}
	return removed
}

// RedisDraftStore keeps drafts as JSON values with a TTL.
type RedisDraftStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisDraftStore wraps client, ttl <= 0 uses DefaultDraftTTL.
func NewRedisDraftStore(client redis.UniversalClient, ttl time.Duration) *RedisDraftStore {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	return &RedisDraftStore{
		client: client,
		ttl:    ttl,
		prefix: draftKeyPrefix,
	}
}

func (r *RedisDraftStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisDraftStore) Load(ctx context.Context, id string) (*WizardSnapshot, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load registration draft")
	}

	snap := &WizardSnapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode registration draft")
	}
	return snap, nil
}

func (r *RedisDraftStore) Save(ctx context.Context, id string, snapshot WizardSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode registration draft: %w", err)
	}
	if err := r.client.Set(ctx, r.key(id), data, r.ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to save registration draft")
	}
	return nil
}

func (r *RedisDraftStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to delete registration draft")
	}
	return nil
}
