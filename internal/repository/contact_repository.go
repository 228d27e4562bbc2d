package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/common"
)

// ContactRepository отвечает за таблицу contacts.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository создаёт экземпляр репозитория.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `id, owner_id, first_name, last_name, email, phone, company, position, status, source, tags, notes, custom_fields, created_at, updated_at`

func scanContact(row sqlx.ColScanner) (*models.Contact, error) {
	var c models.Contact
	var tags pq.StringArray
	if err := row.Scan(
		&c.ID, &c.OwnerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company,
		&c.Position, &c.Status, &c.Source, &tags, &c.Notes, &c.CustomFields,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Tags = []string(tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

// Create добавляет контакт.
func (r *ContactRepository) Create(ctx context.Context, c *models.Contact) error {
	query := `
		INSERT INTO contacts (owner_id, first_name, last_name, email, phone, company, position, status, source, tags, notes, custom_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		c.OwnerID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Position,
		c.Status, c.Source, pq.Array(c.Tags), c.Notes, c.CustomFields,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("contact repository: create %w", err)
	}
	return nil
}

// GetByID возвращает контакт по идентификатору.
func (r *ContactRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("contact repository: get by id %w", err)
	}
	return c, nil
}

// Update сохраняет все изменяемые поля контакта.
func (r *ContactRepository) Update(ctx context.Context, c *models.Contact) error {
	query := `
		UPDATE contacts
		SET owner_id = $2, first_name = $3, last_name = $4, email = $5, phone = $6, company = $7,
			position = $8, status = $9, source = $10, tags = $11, notes = $12, custom_fields = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		c.ID, c.OwnerID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Position,
		c.Status, c.Source, pq.Array(c.Tags), c.Notes, c.CustomFields,
	).Scan(&c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrContactNotFound
		}
		return fmt.Errorf("contact repository: update %w", err)
	}
	return nil
}

// Delete удаляет контакт. Сделки и активности сохраняют NULL ссылку.
func (r *ContactRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := common.DeleteByID(ctx, r.db, "contacts", id, ErrContactNotFound); err != nil {
		if errors.Is(err, ErrContactNotFound) {
			return err
		}
		return fmt.Errorf("contact repository: delete %w", err)
	}
	return nil
}

// List возвращает страницу контактов и общее количество по фильтру.
func (r *ContactRepository) List(ctx context.Context, f models.ContactFilter) ([]models.Contact, int, error) {
	var cond common.Conditions
	if f.Query != "" {
		like := "%" + f.Query + "%"
		cond.Add(`(first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR company ILIKE ? OR phone ILIKE ?)`,
			like, like, like, like, like)
	}
	if f.Status != "" {
		cond.Add("status = ?", f.Status)
	}
	if f.Tag != "" {
		cond.Add("? = ANY(tags)", f.Tag)
	}
	if f.OwnerID != nil {
		cond.Add("owner_id = ?", *f.OwnerID)
	}
	if len(f.IDs) > 0 {
		cond.Add("id = ANY(?)", pq.Array(f.IDs))
	}

	where := cond.Where()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM contacts`+where, cond.Args()...); err != nil {
		return nil, 0, fmt.Errorf("contact repository: count %w", err)
	}

	query := `SELECT ` + contactColumns + ` FROM contacts` + where + ` ORDER BY created_at DESC` + cond.Page(f.Limit, f.Offset)
	rows, err := r.db.QueryxContext(ctx, query, cond.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("contact repository: list query %w", err)
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("contact repository: list scan %w", err)
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("contact repository: list rows %w", err)
	}

	return contacts, total, nil
}

// CountByStatus возвращает количество контактов по статусам.
func (r *ContactRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM contacts GROUP BY status`); err != nil {
		return nil, fmt.Errorf("contact repository: count by status %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// prefixed добавляет псевдоним таблицы к списку колонок.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + p
	}
	return strings.Join(parts, ", ")
}
