package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/crm-backend/internal/db"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/common"
)

// Колонки, которые появились позже и могут отсутствовать в старых базах.
var optionalAppointmentColumns = []string{"deal_id", "location", "meeting_url"}

// AppointmentRepository отвечает за таблицу appointments.
type AppointmentRepository struct {
	db *sqlx.DB

	mu      sync.Mutex
	columns map[string]struct{}
}

// NewAppointmentRepository создаёт экземпляр репозитория.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// availableColumns читает колонки appointments один раз за процесс.
func (r *AppointmentRepository) availableColumns(ctx context.Context) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.columns != nil {
		return r.columns, nil
	}
	cols, err := db.TableColumns(ctx, r.db, "appointments")
	if err != nil {
		return nil, err
	}
	r.columns = cols
	return cols, nil
}

// appointmentValues возвращает пары колонка/значение для записи.
func appointmentValues(a *models.Appointment, cols map[string]struct{}) ([]string, []interface{}) {
	names := []string{"title", "description", "contact_id", "user_id", "starts_at", "ends_at", "status"}
	values := []interface{}{a.Title, a.Description, a.ContactID, a.UserID, a.StartsAt, a.EndsAt, a.Status}

	optional := map[string]interface{}{
		"deal_id":     a.DealID,
		"location":    a.Location,
		"meeting_url": a.MeetingURL,
	}
	for _, name := range optionalAppointmentColumns {
		if _, ok := cols[name]; ok {
			names = append(names, name)
			values = append(values, optional[name])
		}
	}
	return names, values
}

// buildAppointmentInsert собирает INSERT только по существующим колонкам.
func buildAppointmentInsert(a *models.Appointment, cols map[string]struct{}) (string, []interface{}) {
	names, values := appointmentValues(a, cols)
	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO appointments (%s) VALUES (%s) RETURNING id, created_at, updated_at`,
		strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return query, values
}

// buildAppointmentUpdate собирает UPDATE только по существующим колонкам.
func buildAppointmentUpdate(a *models.Appointment, cols map[string]struct{}) (string, []interface{}) {
	names, values := appointmentValues(a, cols)
	sets := make([]string, len(names))
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = $%d", name, i+2)
	}
	query := fmt.Sprintf(`UPDATE appointments SET %s, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		strings.Join(sets, ", "))
	return query, append([]interface{}{a.ID}, values...)
}

// Create добавляет встречу.
func (r *AppointmentRepository) Create(ctx context.Context, a *models.Appointment) error {
	cols, err := r.availableColumns(ctx)
	if err != nil {
		return fmt.Errorf("appointment repository: create %w", err)
	}

	query, args := buildAppointmentInsert(a, cols)
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("appointment repository: create %w", err)
	}
	return nil
}

// GetByID возвращает встречу.
func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	return common.GetByID[models.Appointment](ctx, r.db, "appointments", id, ErrAppointmentNotFound)
}

// Update сохраняет изменения встречи.
func (r *AppointmentRepository) Update(ctx context.Context, a *models.Appointment) error {
	cols, err := r.availableColumns(ctx)
	if err != nil {
		return fmt.Errorf("appointment repository: update %w", err)
	}

	query, args := buildAppointmentUpdate(a, cols)
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("appointment repository: update %w", err)
	}
	return nil
}

// Delete удаляет встречу.
func (r *AppointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return common.DeleteByID(ctx, r.db, "appointments", id, ErrAppointmentNotFound)
}

// List возвращает встречи по фильтру, отсортированные по началу.
func (r *AppointmentRepository) List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, error) {
	var cond common.Conditions
	if f.From != nil {
		cond.Add("starts_at >= ?", *f.From)
	}
	if f.To != nil {
		cond.Add("starts_at < ?", *f.To)
	}
	if f.UserID != nil {
		cond.Add("user_id = ?", *f.UserID)
	}
	if f.ContactID != nil {
		cond.Add("contact_id = ?", *f.ContactID)
	}
	if f.Status != "" {
		cond.Add("status = ?", f.Status)
	}

	items := make([]models.Appointment, 0)
	query := `SELECT * FROM appointments` + cond.Where() + ` ORDER BY starts_at` + cond.Page(f.Limit, 0)
	if err := r.db.SelectContext(ctx, &items, query, cond.Args()...); err != nil {
		return nil, fmt.Errorf("appointment repository: list %w", err)
	}
	return items, nil
}
