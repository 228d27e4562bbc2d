package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/common"
)

// StageRepository отвечает за этапы воронки продаж.
type StageRepository struct {
	db *sqlx.DB
}

// NewStageRepository создаёт экземпляр репозитория.
func NewStageRepository(db *sqlx.DB) *StageRepository {
	return &StageRepository{db: db}
}

// List возвращает этапы по порядку.
func (r *StageRepository) List(ctx context.Context) ([]models.PipelineStage, error) {
	stages := make([]models.PipelineStage, 0)
	query := `
		SELECT id, name, position, probability, color, is_won, is_lost, created_at
		FROM pipeline_stages
		ORDER BY position, created_at
	`
	if err := r.db.SelectContext(ctx, &stages, query); err != nil {
		return nil, fmt.Errorf("stage repository: list %w", err)
	}
	return stages, nil
}

// GetByID возвращает этап по идентификатору.
func (r *StageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PipelineStage, error) {
	return common.GetByID[models.PipelineStage](ctx, r.db, "pipeline_stages", id, ErrStageNotFound)
}

// Create добавляет этап.
func (r *StageRepository) Create(ctx context.Context, s *models.PipelineStage) error {
	query := `
		INSERT INTO pipeline_stages (name, position, probability, color, is_won, is_lost)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		s.Name, s.Position, s.Probability, s.Color, s.IsWon, s.IsLost,
	).Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("stage repository: create %w", err)
	}
	return nil
}

// CreateMany добавляет набор этапов одной транзакцией.
func (r *StageRepository) CreateMany(ctx context.Context, stages []models.PipelineStage) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		inserter := common.NewBatchInserter(tx,
			`INSERT INTO pipeline_stages (id, name, position, probability, color, is_won, is_lost)`, 7, 50)
		for i := range stages {
			if stages[i].ID == uuid.Nil {
				stages[i].ID = uuid.New()
			}
			s := stages[i]
			if err := inserter.Add(ctx, s.ID, s.Name, s.Position, s.Probability, s.Color, s.IsWon, s.IsLost); err != nil {
				return fmt.Errorf("stage repository: create many %w", err)
			}
		}
		if err := inserter.Flush(ctx); err != nil {
			return fmt.Errorf("stage repository: create many %w", err)
		}
		return nil
	})
}

// Update сохраняет изменения этапа.
func (r *StageRepository) Update(ctx context.Context, s *models.PipelineStage) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pipeline_stages
		SET name = $2, position = $3, probability = $4, color = $5, is_won = $6, is_lost = $7
		WHERE id = $1`,
		s.ID, s.Name, s.Position, s.Probability, s.Color, s.IsWon, s.IsLost)
	if err != nil {
		return fmt.Errorf("stage repository: update %w", err)
	}
	return common.EnsureAffected(res, ErrStageNotFound)
}

// Delete удаляет этап.
func (r *StageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return common.DeleteByID(ctx, r.db, "pipeline_stages", id, ErrStageNotFound)
}

// CountDeals возвращает количество сделок на этапе.
func (r *StageRepository) CountDeals(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM deals WHERE stage_id = $1`, id); err != nil {
		return 0, fmt.Errorf("stage repository: count deals %w", err)
	}
	return count, nil
}

// Reorder выставляет позиции этапов в порядке ids.
func (r *StageRepository) Reorder(ctx context.Context, ids []uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		for i, id := range ids {
			res, err := tx.ExecContext(ctx, `UPDATE pipeline_stages SET position = $2 WHERE id = $1`, id, i)
			if err != nil {
				return fmt.Errorf("stage repository: reorder %w", err)
			}
			if err := common.EnsureAffected(res, ErrStageNotFound); err != nil {
				return err
			}
		}
		return nil
	})
}

// DealRepository отвечает за таблицу deals.
type DealRepository struct {
	db *sqlx.DB
}

// NewDealRepository создаёт экземпляр репозитория.
func NewDealRepository(db *sqlx.DB) *DealRepository {
	return &DealRepository{db: db}
}

const dealColumns = `id, title, contact_id, owner_id, stage_id, value, currency, status, expected_close_date, notes, custom_fields, closed_at, created_at, updated_at`

// Create добавляет сделку.
func (r *DealRepository) Create(ctx context.Context, d *models.Deal) error {
	query := `
		INSERT INTO deals (title, contact_id, owner_id, stage_id, value, currency, status, expected_close_date, notes, custom_fields, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		d.Title, d.ContactID, d.OwnerID, d.StageID, d.Value, d.Currency, d.Status,
		d.ExpectedCloseDate, d.Notes, d.CustomFields, d.ClosedAt,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("deal repository: create %w", err)
	}
	return nil
}

// GetByID возвращает сделку по идентификатору.
func (r *DealRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var d models.Deal
	if err := r.db.GetContext(ctx, &d, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("deal repository: get by id %w", err)
	}
	return &d, nil
}

// Update сохраняет все изменяемые поля сделки.
func (r *DealRepository) Update(ctx context.Context, d *models.Deal) error {
	query := `
		UPDATE deals
		SET title = $2, contact_id = $3, owner_id = $4, stage_id = $5, value = $6, currency = $7,
			status = $8, expected_close_date = $9, notes = $10, custom_fields = $11, closed_at = $12,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		d.ID, d.Title, d.ContactID, d.OwnerID, d.StageID, d.Value, d.Currency, d.Status,
		d.ExpectedCloseDate, d.Notes, d.CustomFields, d.ClosedAt,
	).Scan(&d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDealNotFound
		}
		return fmt.Errorf("deal repository: update %w", err)
	}
	return nil
}

// Delete удаляет сделку.
func (r *DealRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return common.DeleteByID(ctx, r.db, "deals", id, ErrDealNotFound)
}

// List возвращает страницу сделок и общее количество по фильтру.
func (r *DealRepository) List(ctx context.Context, f models.DealFilter) ([]models.Deal, int, error) {
	var cond common.Conditions
	if f.StageID != nil {
		cond.Add("stage_id = ?", *f.StageID)
	}
	if f.Status != "" {
		cond.Add("status = ?", f.Status)
	}
	if f.OwnerID != nil {
		cond.Add("owner_id = ?", *f.OwnerID)
	}
	if f.ContactID != nil {
		cond.Add("contact_id = ?", *f.ContactID)
	}

	where := cond.Where()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM deals`+where, cond.Args()...); err != nil {
		return nil, 0, fmt.Errorf("deal repository: count %w", err)
	}

	deals := make([]models.Deal, 0)
	query := `SELECT ` + dealColumns + ` FROM deals` + where + ` ORDER BY created_at DESC` + cond.Page(f.Limit, f.Offset)
	if err := r.db.SelectContext(ctx, &deals, query, cond.Args()...); err != nil {
		return nil, 0, fmt.Errorf("deal repository: list %w", err)
	}
	return deals, total, nil
}

// CountByStatus возвращает количество сделок по статусам.
func (r *DealRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM deals GROUP BY status`); err != nil {
		return nil, fmt.Errorf("deal repository: count by status %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// SumByCurrency суммирует стоимость сделок со статусом status, закрытых не раньше since (если задано).
func (r *DealRepository) SumByCurrency(ctx context.Context, status string, closedSince *time.Time) (map[string]float64, error) {
	var cond common.Conditions
	cond.Add("status = ?", status)
	if closedSince != nil {
		cond.Add("closed_at >= ?", *closedSince)
	}

	var rows []struct {
		Currency string  `db:"currency"`
		Total    float64 `db:"total"`
	}
	query := `SELECT currency, COALESCE(SUM(value), 0) AS total FROM deals` + cond.Where() + ` GROUP BY currency`
	if err := r.db.SelectContext(ctx, &rows, query, cond.Args()...); err != nil {
		return nil, fmt.Errorf("deal repository: sum by currency %w", err)
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.Currency] = row.Total
	}
	return out, nil
}
