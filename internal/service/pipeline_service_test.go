package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
)

func TestPipelineService_SeedsDefaultStagesOnce(t *testing.T) {
	store := memory.NewStore()
	svc := NewPipelineService(store.Stages(), store.Deals())
	ctx := context.Background()

	stages, err := svc.Stages(ctx)
	require.NoError(t, err)
	require.Len(t, stages, 6)
	assert.Equal(t, "Lead", stages[0].Name)
	assert.Equal(t, 10, stages[0].Probability)
	assert.True(t, stages[4].IsWon)
	assert.True(t, stages[5].IsLost)

	again, err := svc.Stages(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 6)
	assert.Equal(t, stages[0].ID, again[0].ID)
}

func TestPipelineService_StageCRUDRequiresManager(t *testing.T) {
	store := memory.NewStore()
	svc := NewPipelineService(store.Stages(), store.Deals())
	ctx := context.Background()
	agent := Actor{UserID: uuid.New(), Role: models.RoleAgent}

	_, err := svc.CreateStage(ctx, agent, StageInput{Name: "Demo", Probability: 40})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	st, err := svc.CreateStage(ctx, managerActor, StageInput{Name: " Demo ", Probability: 40})
	require.NoError(t, err)
	assert.Equal(t, "Demo", st.Name)
	assert.Equal(t, 6, st.Position, "новый этап встаёт после этапов по умолчанию")

	updated, err := svc.UpdateStage(ctx, managerActor, st.ID, StageInput{Name: "Demo call", Probability: 45, Color: ptr("#00aa00")})
	require.NoError(t, err)
	assert.Equal(t, 45, updated.Probability)
	require.NotNil(t, updated.Color)

	require.NoError(t, svc.DeleteStage(ctx, managerActor, st.ID))
	_, err = svc.GetStage(ctx, st.ID)
	assert.ErrorIs(t, err, apperror.ErrStageNotFound)
}

func TestPipelineService_StageValidation(t *testing.T) {
	svc := NewPipelineService(memory.NewStore().Stages(), nil)
	ctx := context.Background()

	cases := []StageInput{
		{Name: "", Probability: 10},
		{Name: "X", Probability: 101},
		{Name: "X", Probability: -1},
		{Name: "X", Probability: 50, IsWon: true, IsLost: true},
		{Name: "X", Probability: 50, Position: ptr(-1)},
	}
	for _, in := range cases {
		_, err := svc.CreateStage(ctx, managerActor, in)
		assert.True(t, apperror.IsValidation(err), "%+v", in)
	}
}

func TestPipelineService_DeleteStageWithDealsConflicts(t *testing.T) {
	store := memory.NewStore()
	svc := NewPipelineService(store.Stages(), store.Deals())
	ctx := context.Background()

	stages, err := svc.Stages(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Deals().Create(ctx, &models.Deal{Title: "Deal", StageID: stages[0].ID, Currency: "USD", Status: models.DealStatusOpen}))

	err = svc.DeleteStage(ctx, managerActor, stages[0].ID)
	assert.True(t, apperror.IsConflict(err))
}

func TestPipelineService_Reorder(t *testing.T) {
	store := memory.NewStore()
	svc := NewPipelineService(store.Stages(), store.Deals())
	ctx := context.Background()

	stages, err := svc.Stages(ctx)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(stages))
	for i := len(stages) - 1; i >= 0; i-- {
		ids = append(ids, stages[i].ID)
	}
	reordered, err := svc.Reorder(ctx, managerActor, ids)
	require.NoError(t, err)
	assert.Equal(t, "Lost", reordered[0].Name)
	assert.Equal(t, "Lead", reordered[len(reordered)-1].Name)

	_, err = svc.Reorder(ctx, managerActor, ids[:2])
	assert.True(t, apperror.IsValidation(err))

	dup := append([]uuid.UUID{ids[0]}, ids[:len(ids)-1]...)
	_, err = svc.Reorder(ctx, managerActor, dup)
	assert.True(t, apperror.IsValidation(err))

	unknown := append([]uuid.UUID{uuid.New()}, ids[1:]...)
	_, err = svc.Reorder(ctx, managerActor, unknown)
	assert.ErrorIs(t, err, apperror.ErrStageNotFound)
}

func TestPipelineService_BoardWeightsOpenDeals(t *testing.T) {
	store := memory.NewStore()
	svc := NewPipelineService(store.Stages(), store.Deals())
	ctx := context.Background()

	stages, err := svc.Stages(ctx)
	require.NoError(t, err)
	lead, won := stages[0], stages[4]

	for _, d := range []models.Deal{
		{Title: "A", StageID: lead.ID, Value: 1000, Currency: "USD", Status: models.DealStatusOpen},
		{Title: "B", StageID: lead.ID, Value: 500, Currency: "USD", Status: models.DealStatusOpen},
		{Title: "C", StageID: won.ID, Value: 900, Currency: "USD", Status: models.DealStatusWon},
	} {
		d := d
		require.NoError(t, store.Deals().Create(ctx, &d))
	}

	board, err := svc.Board(ctx)
	require.NoError(t, err)
	require.Len(t, board, len(stages))

	assert.Equal(t, 2, board[0].Count)
	assert.InDelta(t, 1500, board[0].TotalValue, 0.001)
	assert.InDelta(t, 150, board[0].WeightedValue, 0.001)

	assert.Equal(t, 0, board[4].Count, "закрытые сделки не попадают на доску")
	assert.NotNil(t, board[4].Deals)
}
