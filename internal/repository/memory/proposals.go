package memory

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// ProposalRepository - in-memory реализация предложений.
type ProposalRepository struct{ s *Store }

func (s *Store) Proposals() *ProposalRepository { return &ProposalRepository{s: s} }

func cloneProposal(p models.Proposal) models.Proposal {
	items := make([]models.ProposalItem, len(p.Items))
	copy(items, p.Items)
	p.Items = items
	return p
}

func prepareItems(p *models.Proposal) {
	for i := range p.Items {
		if p.Items[i].ID == uuid.Nil {
			p.Items[i].ID = uuid.New()
		}
		p.Items[i].ProposalID = p.ID
		p.Items[i].Position = i
	}
}

func (r *ProposalRepository) Create(_ context.Context, p *models.Proposal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	p.ID = uuid.New()
	p.CreatedAt, p.UpdatedAt = now, now
	prepareItems(p)
	r.s.proposals[p.ID] = cloneProposal(*p)
	return nil
}

func (r *ProposalRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Proposal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.proposals[id]
	if !ok {
		return nil, repository.ErrProposalNotFound
	}
	p = cloneProposal(p)
	return &p, nil
}

func (r *ProposalRepository) GetByToken(_ context.Context, token string) (*models.Proposal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.proposals {
		if p.PublicToken == token {
			p = cloneProposal(p)
			return &p, nil
		}
	}
	return nil, repository.ErrProposalNotFound
}

func (r *ProposalRepository) Update(_ context.Context, p *models.Proposal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.proposals[p.ID]
	if !ok {
		return repository.ErrProposalNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = r.s.now()
	prepareItems(p)
	r.s.proposals[p.ID] = cloneProposal(*p)
	return nil
}

// Save сохраняет поля предложения, строки остаются прежними.
func (r *ProposalRepository) Save(_ context.Context, p *models.Proposal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.proposals[p.ID]
	if !ok {
		return repository.ErrProposalNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = r.s.now()
	p.Items = existing.Items
	r.s.proposals[p.ID] = cloneProposal(*p)
	return nil
}

func (r *ProposalRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.proposals[id]; !ok {
		return repository.ErrProposalNotFound
	}
	delete(r.s.proposals, id)
	return nil
}

func (r *ProposalRepository) List(_ context.Context, f models.ProposalFilter) ([]models.Proposal, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.proposals, func(p *models.Proposal) bool {
		if f.Status != "" && p.Status != f.Status {
			return false
		}
		if f.ContactID != nil && !uuidEq(p.ContactID, *f.ContactID) {
			return false
		}
		if f.DealID != nil && !uuidEq(p.DealID, *f.DealID) {
			return false
		}
		return true
	})
	newestFirst(items,
		func(p *models.Proposal) time.Time { return p.CreatedAt },
		func(p *models.Proposal) uuid.UUID { return p.ID })

	total := len(items)
	items = page(items, f.Limit, f.Offset)
	for i := range items {
		items[i].Items = nil
	}
	return items, total, nil
}

// NextSequence - счётчик в пределах процесса по уже выданным номерам.
func (r *ProposalRepository) NextSequence(_ context.Context, prefix string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	maxSeq := 0
	for _, p := range r.s.proposals {
		if !strings.HasPrefix(p.Number, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(p.Number, prefix)); err == nil && n > maxSeq {
			maxSeq = n
		}
	}
	return maxSeq + 1, nil
}
