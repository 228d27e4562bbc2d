package service

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/pkg/money"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

// StageRepository описывает хранилище этапов воронки.
type StageRepository interface {
	List(ctx context.Context) ([]models.PipelineStage, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PipelineStage, error)
	Create(ctx context.Context, s *models.PipelineStage) error
	CreateMany(ctx context.Context, stages []models.PipelineStage) error
	Update(ctx context.Context, s *models.PipelineStage) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountDeals(ctx context.Context, id uuid.UUID) (int, error)
	Reorder(ctx context.Context, ids []uuid.UUID) error
}

// DefaultStages этапы новой воронки.
func DefaultStages() []models.PipelineStage {
	return []models.PipelineStage{
		{Name: "Lead", Position: 0, Probability: 10},
		{Name: "Qualified", Position: 1, Probability: 25},
		{Name: "Proposal", Position: 2, Probability: 50},
		{Name: "Negotiation", Position: 3, Probability: 75},
		{Name: "Won", Position: 4, Probability: 100, IsWon: true},
		{Name: "Lost", Position: 5, Probability: 0, IsLost: true},
	}
}

// StageInput данные этапа воронки.
type StageInput struct {
	Name        string
	Probability int
	Color       *string
	IsWon       bool
	IsLost      bool
	Position    *int
}

// PipelineService управляет этапами воронки и доской сделок.
type PipelineService struct {
	stages StageRepository
	deals  DealLister

	seedMu sync.Mutex
}

// NewPipelineService создаёт сервис воронки.
func NewPipelineService(stages StageRepository, deals DealLister) *PipelineService {
	return &PipelineService{stages: stages, deals: deals}
}

// Stages возвращает этапы по порядку. Пустая воронка заполняется этапами по умолчанию.
func (s *PipelineService) Stages(ctx context.Context) ([]models.PipelineStage, error) {
	stages, err := s.stages.List(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if len(stages) > 0 {
		return stages, nil
	}

	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	// повторная проверка под мьютексом: этапы мог создать параллельный запрос
	stages, err = s.stages.List(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if len(stages) > 0 {
		return stages, nil
	}

	defaults := DefaultStages()
	if err := s.stages.CreateMany(ctx, defaults); err != nil {
		return nil, apperror.Internal(err)
	}
	logger.Log.Info("pipeline service: созданы этапы воронки по умолчанию")
	return s.stages.List(ctx)
}

// GetStage возвращает этап.
func (s *PipelineService) GetStage(ctx context.Context, id uuid.UUID) (*models.PipelineStage, error) {
	st, err := s.stages.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, apperror.ErrStageNotFound)
	}
	return st, nil
}

// CreateStage добавляет этап в конец воронки, если позиция не задана.
func (s *PipelineService) CreateStage(ctx context.Context, actor Actor, in StageInput) (*models.PipelineStage, error) {
	if !actor.CanManage() {
		return nil, apperror.ErrForbidden
	}
	st := &models.PipelineStage{}
	if err := applyStageInput(st, in); err != nil {
		return nil, err
	}
	if in.Position == nil {
		stages, err := s.Stages(ctx)
		if err != nil {
			return nil, err
		}
		st.Position = len(stages)
	}
	if err := s.stages.Create(ctx, st); err != nil {
		return nil, apperror.Internal(err)
	}
	return st, nil
}

// UpdateStage изменяет этап.
func (s *PipelineService) UpdateStage(ctx context.Context, actor Actor, id uuid.UUID, in StageInput) (*models.PipelineStage, error) {
	if !actor.CanManage() {
		return nil, apperror.ErrForbidden
	}
	st, err := s.GetStage(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyStageInput(st, in); err != nil {
		return nil, err
	}
	if err := s.stages.Update(ctx, st); err != nil {
		return nil, repoError(err, apperror.ErrStageNotFound)
	}
	return st, nil
}

// DeleteStage удаляет этап, если на нём нет сделок.
func (s *PipelineService) DeleteStage(ctx context.Context, actor Actor, id uuid.UUID) error {
	if !actor.CanManage() {
		return apperror.ErrForbidden
	}
	if _, err := s.GetStage(ctx, id); err != nil {
		return err
	}
	count, err := s.stages.CountDeals(ctx, id)
	if err != nil {
		return apperror.Internal(err)
	}
	if count > 0 {
		return apperror.Conflict("на этапе есть сделки, перенесите их перед удалением")
	}
	if err := s.stages.Delete(ctx, id); err != nil {
		return repoError(err, apperror.ErrStageNotFound)
	}
	return nil
}

// Reorder выставляет порядок этапов. Список должен содержать каждый этап ровно один раз.
func (s *PipelineService) Reorder(ctx context.Context, actor Actor, ids []uuid.UUID) ([]models.PipelineStage, error) {
	if !actor.CanManage() {
		return nil, apperror.ErrForbidden
	}
	stages, err := s.Stages(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(stages) {
		return nil, apperror.Validation("нужно передать все этапы воронки (%d)", len(stages))
	}
	known := make(map[uuid.UUID]struct{}, len(stages))
	for _, st := range stages {
		known[st.ID] = struct{}{}
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return nil, apperror.ErrStageNotFound
		}
		if _, dup := seen[id]; dup {
			return nil, apperror.Validation("этап %s указан дважды", id)
		}
		seen[id] = struct{}{}
	}

	if err := s.stages.Reorder(ctx, ids); err != nil {
		return nil, repoError(err, apperror.ErrStageNotFound)
	}
	return s.Stages(ctx)
}

// Board возвращает колонки воронки с открытыми сделками.
func (s *PipelineService) Board(ctx context.Context) ([]models.BoardColumn, error) {
	stages, err := s.Stages(ctx)
	if err != nil {
		return nil, err
	}
	deals, _, err := s.deals.List(ctx, models.DealFilter{Status: models.DealStatusOpen})
	if err != nil {
		return nil, apperror.Internal(err)
	}

	byStage := make(map[uuid.UUID][]models.Deal, len(stages))
	for _, d := range deals {
		byStage[d.StageID] = append(byStage[d.StageID], d)
	}

	columns := make([]models.BoardColumn, 0, len(stages))
	for _, st := range stages {
		col := models.BoardColumn{Stage: st, Deals: byStage[st.ID]}
		if col.Deals == nil {
			col.Deals = []models.Deal{}
		}
		for _, d := range col.Deals {
			col.TotalValue += d.Value
			col.WeightedValue += d.Value * float64(st.Probability) / 100
		}
		col.Count = len(col.Deals)
		col.TotalValue = money.Round2(col.TotalValue)
		col.WeightedValue = money.Round2(col.WeightedValue)
		columns = append(columns, col)
	}
	return columns, nil
}

func applyStageInput(st *models.PipelineStage, in StageInput) error {
	name := strings.TrimSpace(in.Name)
	if err := validation.ValidateRequired("название этапа", name, validation.MaxNameLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	if in.Probability < 0 || in.Probability > 100 {
		return apperror.Validation("вероятность должна быть от 0 до 100")
	}
	if in.IsWon && in.IsLost {
		return apperror.Validation("этап не может быть одновременно выигранным и проигранным")
	}
	if in.Position != nil {
		if *in.Position < 0 {
			return apperror.Validation("позиция не может быть отрицательной")
		}
		st.Position = *in.Position
	}
	st.Name = name
	st.Probability = in.Probability
	st.Color = trimPtr(in.Color)
	st.IsWon = in.IsWon
	st.IsLost = in.IsLost
	return nil
}
