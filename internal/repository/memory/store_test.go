package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

func strPtr(s string) *string { return &s }

// fixedClock возвращает часы, которые сдвигаются на секунду при каждом вызове.
func fixedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestContacts_ListFiltersAndPaginates(t *testing.T) {
	s := NewStore()
	s.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := s.Contacts()
	ctx := context.Background()

	for _, c := range []models.Contact{
		{FirstName: "Анна", Status: models.ContactStatusLead, Tags: []string{"vip"}, Email: strPtr("anna@example.com")},
		{FirstName: "Борис", Status: models.ContactStatusCustomer, Company: strPtr("Acme")},
		{FirstName: "Вера", Status: models.ContactStatusLead},
	} {
		c := c
		require.NoError(t, repo.Create(ctx, &c))
	}

	leads, total, err := repo.List(ctx, models.ContactFilter{Status: models.ContactStatusLead, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, leads, 1)
	assert.Equal(t, "Вера", leads[0].FirstName, "новые контакты идут первыми")

	byQuery, _, err := repo.List(ctx, models.ContactFilter{Query: "ACME"})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)
	assert.Equal(t, "Борис", byQuery[0].FirstName)

	byTag, _, err := repo.List(ctx, models.ContactFilter{Tag: "vip"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "Анна", byTag[0].FirstName)

	empty, total, err := repo.List(ctx, models.ContactFilter{Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, empty)
}

func TestContacts_DeleteNullsReferences(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	contact := models.Contact{FirstName: "Ирина", Status: models.ContactStatusLead}
	require.NoError(t, s.Contacts().Create(ctx, &contact))

	stage := models.PipelineStage{Name: "Lead"}
	require.NoError(t, s.Stages().Create(ctx, &stage))
	deal := models.Deal{Title: "Сделка", StageID: stage.ID, ContactID: &contact.ID, Status: models.DealStatusOpen}
	require.NoError(t, s.Deals().Create(ctx, &deal))

	list := models.MarketingList{Name: "Рассылка"}
	require.NoError(t, s.Marketing().CreateList(ctx, &list))
	_, err := s.Marketing().AddMembers(ctx, list.ID, []uuid.UUID{contact.ID})
	require.NoError(t, err)

	require.NoError(t, s.Contacts().Delete(ctx, contact.ID))

	got, err := s.Deals().GetByID(ctx, deal.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ContactID)

	members, err := s.Marketing().ListMembers(ctx, list.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	assert.ErrorIs(t, s.Contacts().Delete(ctx, contact.ID), repository.ErrContactNotFound)
}

func TestContacts_ReturnedCopiesAreIsolated(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	c := models.Contact{FirstName: "Олег", Tags: []string{"a"}}
	require.NoError(t, s.Contacts().Create(ctx, &c))

	got, err := s.Contacts().GetByID(ctx, c.ID)
	require.NoError(t, err)
	got.Tags[0] = "changed"

	again, err := s.Contacts().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Tags)
}

func TestMarketing_AddMembersIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	c := models.Contact{FirstName: "Пётр"}
	require.NoError(t, s.Contacts().Create(ctx, &c))
	list := models.MarketingList{Name: "Клиенты"}
	require.NoError(t, s.Marketing().CreateList(ctx, &list))

	added, err := s.Marketing().AddMembers(ctx, list.ID, []uuid.UUID{c.ID, c.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = s.Marketing().AddMembers(ctx, list.ID, []uuid.UUID{c.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	got, err := s.Marketing().GetList(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemberCount)
}

func TestMarketing_ClaimCampaignOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	c := models.Campaign{Name: "Весна", Channel: models.CampaignChannelEmail, Status: models.CampaignStatusDraft}
	require.NoError(t, s.Marketing().CreateCampaign(ctx, &c))

	ok, err := s.Marketing().ClaimCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Marketing().ClaimCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProposals_NextSequence(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Proposals()

	next, err := repo.NextSequence(ctx, "P-2026-")
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	for _, number := range []string{"P-2026-0001", "P-2026-0007", "P-2025-0042"} {
		p := models.Proposal{Number: number, PublicToken: number}
		require.NoError(t, repo.Create(ctx, &p))
	}

	next, err = repo.NextSequence(ctx, "P-2026-")
	require.NoError(t, err)
	assert.Equal(t, 8, next)
}

func TestProposals_SaveKeepsItems(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Proposals()

	p := models.Proposal{Number: "P-2026-0001", Items: []models.ProposalItem{{Description: "Лицензия", Quantity: 2, UnitPrice: 10}}}
	require.NoError(t, repo.Create(ctx, &p))

	p.Items = nil
	p.Status = models.ProposalStatusSent
	require.NoError(t, repo.Save(ctx, &p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusSent, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, p.ID, got.Items[0].ProposalID)
}

func TestFields_DuplicateKeyRejected(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	f := models.FieldConfig{Entity: models.FieldEntityContact, Key: "industry", Label: "Отрасль", Type: models.FieldTypeText}
	require.NoError(t, s.Fields().Create(ctx, &f))

	dup := f
	assert.ErrorIs(t, s.Fields().Create(ctx, &dup), repository.ErrFieldExists)

	other := f
	other.Entity = models.FieldEntityDeal
	assert.NoError(t, s.Fields().Create(ctx, &other))
}

func TestActivities_CountDue(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour)
	soon := now.Add(time.Hour)
	later := now.Add(48 * time.Hour)
	for _, due := range []*time.Time{&past, &soon, &later, nil} {
		a := models.Activity{Type: models.ActivityTypeTask, Subject: "x", DueAt: due}
		require.NoError(t, s.Activities().Create(ctx, &a))
	}

	due, overdue, err := s.Activities().CountDue(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, due)
	assert.Equal(t, 1, overdue)
}

func TestChat_RecentKeepsLastMessages(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()

	for _, text := range []string{"1", "2", "3"} {
		m := models.ChatMessage{UserID: userID.String(), Role: "user", Content: text}
		require.NoError(t, s.Chat().Add(ctx, &m))
	}

	recent, err := s.Chat().Recent(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].Content)
	assert.Equal(t, "3", recent[1].Content)
}
