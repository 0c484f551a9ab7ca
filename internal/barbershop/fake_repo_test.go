package barbershop

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/barberadmin/internal/model"
	"github.com/hitoshi/barberadmin/internal/repository"
)

// memoryRepo は所有者で絞り込むインメモリの店舗リポジトリ。
type memoryRepo struct {
	mu     sync.Mutex
	shops  map[string]model.Barbershop
	clock  time.Time
	err    error
	writes int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		shops: map[string]model.Barbershop{},
		clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *memoryRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Minute)
	return r.clock
}

func (r *memoryRepo) ListByOwner(_ context.Context, ownerID string) ([]model.BarbershopSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	shops := []model.BarbershopSummary{}
	for _, s := range r.shops {
		if s.UserID != ownerID {
			continue
		}
		shops = append(shops, model.BarbershopSummary{
			ID: s.ID, Name: s.Name, Address: s.Address, Phone: s.Phone, CreatedAt: s.CreatedAt,
		})
	}
	sort.Slice(shops, func(i, j int) bool { return shops[i].CreatedAt.After(shops[j].CreatedAt) })
	return shops, nil
}

func (r *memoryRepo) FindByIDAndOwner(_ context.Context, id, ownerID string) (*model.Barbershop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	s, ok := r.shops[id]
	if !ok || s.UserID != ownerID {
		return nil, nil
	}
	return &s, nil
}

func (r *memoryRepo) Create(_ context.Context, shop *model.Barbershop) (*model.Barbershop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	r.writes++
	s := *shop
	s.CreatedAt = r.tick()
	s.UpdatedAt = s.CreatedAt
	r.shops[s.ID] = s
	return &s, nil
}

func (r *memoryRepo) UpdateByIDAndOwner(_ context.Context, id, ownerID string, patch model.BarbershopPatch) (*model.Barbershop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	s, ok := r.shops[id]
	if !ok || s.UserID != ownerID {
		return nil, nil
	}

	r.writes++
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Address != nil {
		s.Address = emptyToNil(patch.Address)
	}
	if patch.Phone != nil {
		s.Phone = emptyToNil(patch.Phone)
	}
	if patch.LogoURL != nil {
		s.LogoURL = emptyToNil(patch.LogoURL)
	}
	if patch.OpeningTime != nil {
		s.OpeningTime = emptyToNil(patch.OpeningTime)
	}
	if patch.ClosingTime != nil {
		s.ClosingTime = emptyToNil(patch.ClosingTime)
	}
	if patch.AppointmentDurationMinutes != nil {
		d := *patch.AppointmentDurationMinutes
		s.AppointmentDurationMinutes = &d
	}
	s.Theme = patch.Theme.Merge(s.Theme)
	s.UpdatedAt = r.tick()
	r.shops[id] = s
	return &s, nil
}

func (r *memoryRepo) DeleteByIDAndOwner(_ context.Context, id, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}

	s, ok := r.shops[id]
	if !ok || s.UserID != ownerID {
		return false, nil
	}
	r.writes++
	delete(r.shops, id)
	return true, nil
}

func (r *memoryRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func emptyToNil(v *string) *string {
	if *v == "" {
		return nil
	}
	s := *v
	return &s
}

var _ repository.BarbershopRepository = (*memoryRepo)(nil)

// identityFunc は関数をIdentityResolverとして扱う。
type identityFunc func(ctx context.Context) (string, error)

func (f identityFunc) ResolveUserID(ctx context.Context) (string, error) {
	return f(ctx)
}

// as は常に指定ユーザーとして解決するIdentityResolverを返す。
func as(userID string) IdentityResolver {
	return identityFunc(func(context.Context) (string, error) { return userID, nil })
}

type invalidation struct {
	owner  string
	routes []string
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []invalidation
	err   error
}

func (i *recordingInvalidator) Invalidate(_ context.Context, ownerID string, routes ...string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, invalidation{owner: ownerID, routes: routes})
	return i.err
}

type actionRecord struct {
	action  string
	outcome string
}

type recordingMetrics struct {
	mu      sync.Mutex
	actions []actionRecord
}

func (m *recordingMetrics) RecordSignIn(string) {}
func (m *recordingMetrics) RecordSignOut() {}
func (m *recordingMetrics) RecordHTTPStatus(int) {}
func (m *recordingMetrics) RecordViewCache(bool) {}
func (m *recordingMetrics) RecordSessionsCleaned(int64) {}
func (m *recordingMetrics) RecordAction(action, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, actionRecord{action: action, outcome: outcome})
}
