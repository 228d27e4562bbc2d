package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/common"
)

// SettingsRepository хранит реквизиты компании.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository создаёт экземпляр репозитория.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get возвращает сохранённые настройки или ErrSettingsNotFound.
func (r *SettingsRepository) Get(ctx context.Context) (*models.CompanySettings, error) {
	var s models.CompanySettings
	query := `
		SELECT company_name, email, phone, address, website, logo_url, currency, tax_rate, timezone, updated_at
		FROM company_settings WHERE id = 1
	`
	if err := r.db.GetContext(ctx, &s, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("settings repository: get %w", err)
	}
	return &s, nil
}

// Upsert создаёт или обновляет единственную строку настроек.
func (r *SettingsRepository) Upsert(ctx context.Context, s *models.CompanySettings) error {
	query := `
		INSERT INTO company_settings (id, company_name, email, phone, address, website, logo_url, currency, tax_rate, timezone, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE
		SET company_name = EXCLUDED.company_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			website = EXCLUDED.website,
			logo_url = EXCLUDED.logo_url,
			currency = EXCLUDED.currency,
			tax_rate = EXCLUDED.tax_rate,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		s.CompanyName, s.Email, s.Phone, s.Address, s.Website, s.LogoURL, s.Currency, s.TaxRate, s.Timezone,
	).Scan(&s.UpdatedAt); err != nil {
		return fmt.Errorf("settings repository: upsert %w", err)
	}
	return nil
}

// FieldConfigRepository хранит настройки полей форм.
type FieldConfigRepository struct {
	db *sqlx.DB
}

// NewFieldConfigRepository создаёт экземпляр репозитория.
func NewFieldConfigRepository(db *sqlx.DB) *FieldConfigRepository {
	return &FieldConfigRepository{db: db}
}

const fieldColumns = `id, entity, key, label, type, options, required, visible, position, is_system, created_at, updated_at`

func scanField(row sqlx.ColScanner) (*models.FieldConfig, error) {
	var f models.FieldConfig
	var options pq.StringArray
	if err := row.Scan(
		&f.ID, &f.Entity, &f.Key, &f.Label, &f.Type, &options, &f.Required,
		&f.Visible, &f.Position, &f.IsSystem, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	f.Options = []string(options)
	if f.Options == nil {
		f.Options = []string{}
	}
	return &f, nil
}

// List возвращает сохранённые поля сущности по порядку.
func (r *FieldConfigRepository) List(ctx context.Context, entity string) ([]models.FieldConfig, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+fieldColumns+` FROM field_configs WHERE entity = $1 ORDER BY position, key`, entity)
	if err != nil {
		return nil, fmt.Errorf("field repository: list %w", err)
	}
	defer rows.Close()

	fields := make([]models.FieldConfig, 0)
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("field repository: list scan %w", err)
		}
		fields = append(fields, *f)
	}
	return fields, rows.Err()
}

// GetByID возвращает поле сущности.
func (r *FieldConfigRepository) GetByID(ctx context.Context, entity, id string) (*models.FieldConfig, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT `+fieldColumns+` FROM field_configs WHERE entity = $1 AND id::text = $2`, entity, id)
	f, err := scanField(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFieldNotFound
		}
		return nil, fmt.Errorf("field repository: get %w", err)
	}
	return f, nil
}

// Create добавляет поле; дубликат ключа возвращает ErrFieldExists.
func (r *FieldConfigRepository) Create(ctx context.Context, f *models.FieldConfig) error {
	query := `
		INSERT INTO field_configs (entity, key, label, type, options, required, visible, position, is_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		f.Entity, f.Key, f.Label, f.Type, pq.Array(f.Options), f.Required, f.Visible, f.Position, f.IsSystem,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrFieldExists
		}
		return fmt.Errorf("field repository: create %w", err)
	}
	return nil
}

// Update сохраняет изменяемые атрибуты поля.
func (r *FieldConfigRepository) Update(ctx context.Context, f *models.FieldConfig) error {
	err := r.db.QueryRowxContext(ctx, `
		UPDATE field_configs
		SET label = $3, type = $4, options = $5, required = $6, visible = $7, position = $8, updated_at = NOW()
		WHERE entity = $1 AND id::text = $2
		RETURNING updated_at`,
		f.Entity, f.ID, f.Label, f.Type, pq.Array(f.Options), f.Required, f.Visible, f.Position,
	).Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFieldNotFound
		}
		return fmt.Errorf("field repository: update %w", err)
	}
	return nil
}

// Delete удаляет поле.
func (r *FieldConfigRepository) Delete(ctx context.Context, entity, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM field_configs WHERE entity = $1 AND id::text = $2`, entity, id)
	if err != nil {
		return fmt.Errorf("field repository: delete %w", err)
	}
	return common.EnsureAffected(res, ErrFieldNotFound)
}

// SetPositions выставляет позиции полей по ключам.
func (r *FieldConfigRepository) SetPositions(ctx context.Context, entity string, keys []string) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		for i, key := range keys {
			if _, err := tx.ExecContext(ctx,
				`UPDATE field_configs SET position = $3, updated_at = NOW() WHERE entity = $1 AND key = $2`,
				entity, key, i); err != nil {
				return fmt.Errorf("field repository: set positions %w", err)
			}
		}
		return nil
	})
}
