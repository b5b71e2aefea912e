// Package testutil provides in-memory stand-ins for the stores.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/foundernet/engine/internal/migrations"
	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/repository"
	appErr "github.com/foundernet/engine/pkg/errors"
)

// MemFounders is a repository.FounderRepository over a map. It applies
// policy.Founders the way the RLS policies do: statements an actor may not
// run fail, rows an actor may not see are absent.
//
// Thread-safety: all methods are safe for concurrent use.
type MemFounders struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]*models.Founder
	written    map[uuid.UUID]time.Time
	identities map[uuid.UUID]string

	// ReadLag hides rows written less than ReadLag ago from reads, like a
	// lagging replica.
	ReadLag time.Duration
	// FailReads makes the next FailReads reads fail as unavailable.
	FailReads int

	ProvisionCalls int
	ReadCalls      int
}

func NewMemFounders() *MemFounders {
	return &MemFounders{
		rows:       map[uuid.UUID]*models.Founder{},
		written:    map[uuid.UUID]time.Time{},
		identities: map[uuid.UUID]string{},
	}
}

var _ repository.FounderRepository = (*MemFounders)(nil)

// RegisterIdentity marks id as a live identity with email.
func (m *MemFounders) RegisterIdentity(id uuid.UUID, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id] = strings.ToLower(email)
}

// Seed stores f as is, bypassing policy, as the table owner would.
func (m *MemFounders) Seed(f models.Founder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[f.ID] = clone(&f)
	m.written[f.ID] = time.Time{}
}

// Count returns the number of stored rows.
func (m *MemFounders) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Raw returns a copy of the stored row with id, ignoring policy and lag.
func (m *MemFounders) Raw(id uuid.UUID) (models.Founder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rows[id]
	if !ok {
		return models.Founder{}, false
	}
	return *clone(f), true
}

func clone(f *models.Founder) *models.Founder {
	c := *f
	c.Tags = append(pq.StringArray{}, f.Tags...)
	c.Links = datatypes.JSONMap{}
	for k, v := range f.Links {
		c.Links[k] = v
	}
	return &c
}

func (m *MemFounders) byEmail(email string) *models.Founder {
	for _, f := range m.rows {
		if strings.EqualFold(f.Email, email) {
			return f
		}
	}
	return nil
}

func (m *MemFounders) Provision(ctx context.Context, actor policy.Actor, in repository.ProvisionInput) (*repository.ProvisionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErr.Unavailable(err, "provision founder failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProvisionCalls++

	if err := policy.Founders.Gate(actor, policy.Insert); err != nil {
		return nil, err
	}
	if e, ok := m.identities[actor.ID]; ok && e != strings.ToLower(in.Email) {
		return nil, appErr.PolicyDenied("email does not belong to the caller")
	}

	if err := policy.Founders.Authorize(actor, policy.Insert, policy.Row{ID: in.ID}); err != nil {
		return nil, err
	}

	res := &repository.ProvisionResult{}
	if _, mine := m.rows[actor.ID]; !mine {
		if orphan := m.byEmail(in.Email); orphan != nil {
			if _, live := m.identities[orphan.ID]; live {
				return nil, appErr.Conflict("email is held by another identity").
					WithMeta("sqlstate", migrations.SQLStateEmailClaimed)
			}
			prev := orphan.ID
			delete(m.rows, prev)
			delete(m.written, prev)
			orphan.ID = actor.ID
			orphan.Email = strings.ToLower(in.Email)
			m.rows[actor.ID] = orphan
			res.AdoptedFrom = &prev
		}
	}

	now := time.Now().UTC()
	f, ok := m.rows[in.ID]
	if !ok {
		if other := m.byEmail(in.Email); other != nil {
			return nil, appErr.Conflict("duplicate founder email").
				WithMeta("constraint", migrations.FounderEmailIndex)
		}
		f = &models.Founder{
			ID:             in.ID,
			Email:          in.Email,
			Tags:           pq.StringArray{},
			Links:          datatypes.JSONMap{},
			ProfileVisible: true,
			CreatedAt:      now,
		}
		m.rows[in.ID] = f
	}
	in.Fields.Apply(f)
	f.UpdatedAt = now
	m.written[in.ID] = now

	res.Founder = clone(f)
	return res, nil
}

func (m *MemFounders) read(actor policy.Actor) error {
	m.ReadCalls++
	if err := policy.Founders.Gate(actor, policy.Select); err != nil {
		return err
	}
	if m.FailReads > 0 {
		m.FailReads--
		return appErr.Unavailable(fmt.Errorf("connection reset by peer"), "read founders failed")
	}
	return nil
}

func (m *MemFounders) visible(actor policy.Actor, f *models.Founder, now time.Time) bool {
	if m.ReadLag > 0 && now.Sub(m.written[f.ID]) < m.ReadLag {
		return false
	}
	return policy.Founders.Permits(actor, policy.Select, policy.RowOf(f))
}

func (m *MemFounders) FindByID(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.Founder, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErr.Unavailable(err, "find founder failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.read(actor); err != nil {
		return nil, err
	}
	f, ok := m.rows[id]
	if !ok || !m.visible(actor, f, time.Now()) {
		return nil, nil
	}
	return clone(f), nil
}

func (m *MemFounders) ListDiscoverable(ctx context.Context, actor policy.Actor, limit, offset int) ([]models.Founder, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErr.Unavailable(err, "list founders failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.read(actor); err != nil {
		return nil, err
	}
	now := time.Now()
	out := []models.Founder{}
	for _, f := range m.rows {
		if f.ProfileVisible && m.visible(actor, f, now) {
			out = append(out, *clone(f))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if offset >= len(out) {
		return []models.Founder{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemFounders) writable(actor policy.Actor, op policy.Operation, id uuid.UUID) (*models.Founder, error) {
	if err := policy.Founders.Gate(actor, op); err != nil {
		return nil, err
	}
	f, ok := m.rows[id]
	if !ok || !policy.Founders.Permits(actor, op, policy.RowOf(f)) {
		return nil, appErr.New(appErr.CodeNotFound, fmt.Sprintf("founder %s not found", id))
	}
	return f, nil
}

func (m *MemFounders) Update(ctx context.Context, actor policy.Actor, id uuid.UUID, fields models.FounderFields) (*models.Founder, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErr.Unavailable(err, "update founder failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.writable(actor, policy.Update, id)
	if err != nil {
		return nil, err
	}
	fields.Apply(f)
	f.UpdatedAt = time.Now().UTC()
	m.written[id] = f.UpdatedAt
	return clone(f), nil
}

func (m *MemFounders) Delete(ctx context.Context, actor policy.Actor, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return appErr.Unavailable(err, "delete founder failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.writable(actor, policy.Delete, id); err != nil {
		return err
	}
	delete(m.rows, id)
	delete(m.written, id)
	return nil
}
