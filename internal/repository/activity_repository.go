package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/common"
)

// ActivityRepository отвечает за журнал активностей.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository создаёт экземпляр репозитория.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create добавляет активность.
func (r *ActivityRepository) Create(ctx context.Context, a *models.Activity) error {
	query := `
		INSERT INTO activities (type, subject, description, contact_id, deal_id, user_id, due_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		a.Type, a.Subject, a.Description, a.ContactID, a.DealID, a.UserID, a.DueAt, a.CompletedAt,
	).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("activity repository: create %w", err)
	}
	return nil
}

// GetByID возвращает активность.
func (r *ActivityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	return common.GetByID[models.Activity](ctx, r.db, "activities", id, ErrActivityNotFound)
}

// List возвращает страницу активностей и общее количество.
func (r *ActivityRepository) List(ctx context.Context, f models.ActivityFilter) ([]models.Activity, int, error) {
	var cond common.Conditions
	if f.ContactID != nil {
		cond.Add("contact_id = ?", *f.ContactID)
	}
	if f.DealID != nil {
		cond.Add("deal_id = ?", *f.DealID)
	}
	if f.UserID != nil {
		cond.Add("user_id = ?", *f.UserID)
	}
	if f.Type != "" {
		cond.Add("type = ?", f.Type)
	}
	if f.Pending != nil {
		if *f.Pending {
			cond.Add("completed_at IS NULL")
		} else {
			cond.Add("completed_at IS NOT NULL")
		}
	}

	where := cond.Where()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activities`+where, cond.Args()...); err != nil {
		return nil, 0, fmt.Errorf("activity repository: count %w", err)
	}

	items := make([]models.Activity, 0)
	query := `SELECT * FROM activities` + where + ` ORDER BY created_at DESC` + cond.Page(f.Limit, f.Offset)
	if err := r.db.SelectContext(ctx, &items, query, cond.Args()...); err != nil {
		return nil, 0, fmt.Errorf("activity repository: list %w", err)
	}
	return items, total, nil
}

// Complete отмечает активность выполненной.
func (r *ActivityRepository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE activities SET completed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("activity repository: complete %w", err)
	}
	return common.EnsureAffected(res, ErrActivityNotFound)
}

// Delete удаляет активность.
func (r *ActivityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return common.DeleteByID(ctx, r.db, "activities", id, ErrActivityNotFound)
}

// CountDue возвращает количество незавершённых задач со сроком до until и просроченных на момент now.
func (r *ActivityRepository) CountDue(ctx context.Context, now, until time.Time) (due int, overdue int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE due_at >= $1 AND due_at < $2) AS due,
			COUNT(*) FILTER (WHERE due_at < $1) AS overdue
		FROM activities
		WHERE completed_at IS NULL AND due_at IS NOT NULL
	`
	if err := r.db.QueryRowxContext(ctx, query, now, until).Scan(&due, &overdue); err != nil {
		return 0, 0, fmt.Errorf("activity repository: count due %w", err)
	}
	return due, overdue, nil
}
