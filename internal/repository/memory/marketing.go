package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// MarketingRepository - in-memory реализация списков и кампаний.
type MarketingRepository struct{ s *Store }

func (s *Store) Marketing() *MarketingRepository { return &MarketingRepository{s: s} }

func (r *MarketingRepository) withCount(l models.MarketingList) models.MarketingList {
	l.MemberCount = len(r.s.members[l.ID])
	return l
}

func (r *MarketingRepository) CreateList(_ context.Context, l *models.MarketingList) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	l.ID = uuid.New()
	l.CreatedAt, l.UpdatedAt = now, now
	l.MemberCount = 0
	r.s.lists[l.ID] = *l
	return nil
}

func (r *MarketingRepository) GetList(_ context.Context, id uuid.UUID) (*models.MarketingList, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	l, ok := r.s.lists[id]
	if !ok {
		return nil, repository.ErrListNotFound
	}
	l = r.withCount(l)
	return &l, nil
}

func (r *MarketingRepository) ListLists(_ context.Context) ([]models.MarketingList, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.lists, nil)
	newestFirst(items,
		func(l *models.MarketingList) time.Time { return l.CreatedAt },
		func(l *models.MarketingList) uuid.UUID { return l.ID })
	for i := range items {
		items[i] = r.withCount(items[i])
	}
	return items, nil
}

func (r *MarketingRepository) UpdateList(_ context.Context, l *models.MarketingList) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.lists[l.ID]
	if !ok {
		return repository.ErrListNotFound
	}
	existing.Name = l.Name
	existing.Description = l.Description
	existing.UpdatedAt = r.s.now()
	r.s.lists[l.ID] = existing
	l.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *MarketingRepository) DeleteList(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.lists[id]; !ok {
		return repository.ErrListNotFound
	}
	delete(r.s.lists, id)
	delete(r.s.members, id)
	for k, c := range r.s.campaigns {
		if uuidEq(c.ListID, id) {
			c.ListID = nil
			r.s.campaigns[k] = c
		}
	}
	return nil
}

func (r *MarketingRepository) AddMembers(_ context.Context, listID uuid.UUID, contactIDs []uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.lists[listID]; !ok {
		return 0, repository.ErrListNotFound
	}
	existing := make(map[uuid.UUID]struct{}, len(r.s.members[listID]))
	for _, m := range r.s.members[listID] {
		existing[m.contactID] = struct{}{}
	}

	added := 0
	now := r.s.now()
	for _, id := range contactIDs {
		if _, ok := r.s.contacts[id]; !ok {
			return added, repository.ErrContactNotFound
		}
		if _, ok := existing[id]; ok {
			continue
		}
		existing[id] = struct{}{}
		r.s.members[listID] = append(r.s.members[listID], listMember{contactID: id, addedAt: now})
		added++
	}
	return added, nil
}

func (r *MarketingRepository) RemoveMember(_ context.Context, listID, contactID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	members := r.s.members[listID]
	for i, m := range members {
		if m.contactID == contactID {
			r.s.members[listID] = append(members[:i:i], members[i+1:]...)
			return nil
		}
	}
	return repository.ErrContactNotFound
}

func (r *MarketingRepository) ListMembers(_ context.Context, listID uuid.UUID) ([]models.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	members := append([]listMember(nil), r.s.members[listID]...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].addedAt.Before(members[j].addedAt) })

	out := make([]models.Contact, 0, len(members))
	for _, m := range members {
		if c, ok := r.s.contacts[m.contactID]; ok {
			out = append(out, cloneContact(c))
		}
	}
	return out, nil
}

func (r *MarketingRepository) CreateCampaign(_ context.Context, c *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	c.ID = uuid.New()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *MarketingRepository) GetCampaign(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	return &c, nil
}

func (r *MarketingRepository) ListCampaigns(_ context.Context) ([]models.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.campaigns, nil)
	newestFirst(items,
		func(c *models.Campaign) time.Time { return c.CreatedAt },
		func(c *models.Campaign) uuid.UUID { return c.ID })
	return items, nil
}

func (r *MarketingRepository) UpdateCampaign(_ context.Context, c *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.campaigns[c.ID]
	if !ok {
		return repository.ErrCampaignNotFound
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = r.s.now()
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *MarketingRepository) ClaimCampaign(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return false, repository.ErrCampaignNotFound
	}
	if c.Status == models.CampaignStatusSending || c.Status == models.CampaignStatusSent {
		return false, nil
	}
	c.Status = models.CampaignStatusSending
	c.UpdatedAt = r.s.now()
	r.s.campaigns[id] = c
	return true, nil
}

func (r *MarketingRepository) DeleteCampaign(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.campaigns[id]; !ok {
		return repository.ErrCampaignNotFound
	}
	delete(r.s.campaigns, id)
	delete(r.s.deliveries, id)
	return nil
}

func (r *MarketingRepository) ListDueCampaigns(_ context.Context, now time.Time) ([]models.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.campaigns, func(c *models.Campaign) bool {
		return c.Status == models.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
	})
	sort.Slice(items, func(i, j int) bool { return items[i].ScheduledAt.Before(*items[j].ScheduledAt) })
	return items, nil
}

func (r *MarketingRepository) CreateDeliveries(_ context.Context, deliveries []models.CampaignDelivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i := range deliveries {
		if deliveries[i].ID == uuid.Nil {
			deliveries[i].ID = uuid.New()
		}
		d := deliveries[i]
		r.s.deliveries[d.CampaignID] = append(r.s.deliveries[d.CampaignID], d)
	}
	return nil
}

func (r *MarketingRepository) ListDeliveries(_ context.Context, campaignID uuid.UUID) ([]models.CampaignDelivery, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return append(make([]models.CampaignDelivery, 0), r.s.deliveries[campaignID]...), nil
}
