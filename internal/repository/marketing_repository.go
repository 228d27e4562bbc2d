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

// MarketingRepository отвечает за списки рассылок, кампании и доставки.
type MarketingRepository struct {
	db *sqlx.DB
}

// NewMarketingRepository создаёт экземпляр репозитория.
func NewMarketingRepository(db *sqlx.DB) *MarketingRepository {
	return &MarketingRepository{db: db}
}

const listSelect = `
	SELECT l.id, l.name, l.description, l.created_by, l.created_at, l.updated_at,
		(SELECT COUNT(*) FROM marketing_list_members m WHERE m.list_id = l.id) AS member_count
	FROM marketing_lists l
`

// CreateList добавляет список рассылки.
func (r *MarketingRepository) CreateList(ctx context.Context, l *models.MarketingList) error {
	query := `
		INSERT INTO marketing_lists (name, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query, l.Name, l.Description, l.CreatedBy).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return fmt.Errorf("marketing repository: create list %w", err)
	}
	return nil
}

// GetList возвращает список с количеством участников.
func (r *MarketingRepository) GetList(ctx context.Context, id uuid.UUID) (*models.MarketingList, error) {
	var l models.MarketingList
	if err := r.db.GetContext(ctx, &l, listSelect+` WHERE l.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListNotFound
		}
		return nil, fmt.Errorf("marketing repository: get list %w", err)
	}
	return &l, nil
}

// ListLists возвращает все списки рассылки.
func (r *MarketingRepository) ListLists(ctx context.Context) ([]models.MarketingList, error) {
	lists := make([]models.MarketingList, 0)
	if err := r.db.SelectContext(ctx, &lists, listSelect+` ORDER BY l.created_at DESC`); err != nil {
		return nil, fmt.Errorf("marketing repository: list lists %w", err)
	}
	return lists, nil
}

// UpdateList сохраняет название и описание списка.
func (r *MarketingRepository) UpdateList(ctx context.Context, l *models.MarketingList) error {
	err := r.db.QueryRowxContext(ctx, `
		UPDATE marketing_lists SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`, l.ID, l.Name, l.Description).Scan(&l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrListNotFound
		}
		return fmt.Errorf("marketing repository: update list %w", err)
	}
	return nil
}

// DeleteList удаляет список; участники удаляются каскадно.
func (r *MarketingRepository) DeleteList(ctx context.Context, id uuid.UUID) error {
	return common.DeleteByID(ctx, r.db, "marketing_lists", id, ErrListNotFound)
}

// AddMembers добавляет контакты в список, повторное добавление игнорируется.
func (r *MarketingRepository) AddMembers(ctx context.Context, listID uuid.UUID, contactIDs []uuid.UUID) (int, error) {
	added := 0
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, contactID := range contactIDs {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO marketing_list_members (list_id, contact_id)
				VALUES ($1, $2)
				ON CONFLICT (list_id, contact_id) DO NOTHING`, listID, contactID)
			if err != nil {
				return fmt.Errorf("marketing repository: add member %w", err)
			}
			n, _ := res.RowsAffected()
			added += int(n)
		}
		return nil
	})
	return added, err
}

// RemoveMember удаляет контакт из списка.
func (r *MarketingRepository) RemoveMember(ctx context.Context, listID, contactID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM marketing_list_members WHERE list_id = $1 AND contact_id = $2`, listID, contactID)
	if err != nil {
		return fmt.Errorf("marketing repository: remove member %w", err)
	}
	return common.EnsureAffected(res, ErrContactNotFound)
}

// ListMembers возвращает контакты списка.
func (r *MarketingRepository) ListMembers(ctx context.Context, listID uuid.UUID) ([]models.Contact, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT `+prefixed("c.", contactColumns)+`
		FROM marketing_list_members m
		JOIN contacts c ON c.id = m.contact_id
		WHERE m.list_id = $1
		ORDER BY m.added_at`, listID)
	if err != nil {
		return nil, fmt.Errorf("marketing repository: list members %w", err)
	}
	defer rows.Close()

	members := make([]models.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("marketing repository: scan member %w", err)
		}
		members = append(members, *c)
	}
	return members, rows.Err()
}

// CreateCampaign добавляет кампанию.
func (r *MarketingRepository) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	query := `
		INSERT INTO campaigns (name, channel, list_id, subject, content, status, scheduled_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		c.Name, c.Channel, c.ListID, c.Subject, c.Content, c.Status, c.ScheduledAt, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("marketing repository: create campaign %w", err)
	}
	return nil
}

// GetCampaign возвращает кампанию.
func (r *MarketingRepository) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return common.GetByID[models.Campaign](ctx, r.db, "campaigns", id, ErrCampaignNotFound)
}

// ListCampaigns возвращает все кампании.
func (r *MarketingRepository) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	items := make([]models.Campaign, 0)
	if err := r.db.SelectContext(ctx, &items, `SELECT * FROM campaigns ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("marketing repository: list campaigns %w", err)
	}
	return items, nil
}

// UpdateCampaign сохраняет все изменяемые поля кампании.
func (r *MarketingRepository) UpdateCampaign(ctx context.Context, c *models.Campaign) error {
	query := `
		UPDATE campaigns
		SET name = $2, channel = $3, list_id = $4, subject = $5, content = $6, status = $7,
			scheduled_at = $8, sent_at = $9, sent_count = $10, failed_count = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		c.ID, c.Name, c.Channel, c.ListID, c.Subject, c.Content, c.Status,
		c.ScheduledAt, c.SentAt, c.SentCount, c.FailedCount,
	).Scan(&c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCampaignNotFound
		}
		return fmt.Errorf("marketing repository: update campaign %w", err)
	}
	return nil
}

// ClaimCampaign атомарно переводит кампанию в статус sending, если она ещё не отправляется.
func (r *MarketingRepository) ClaimCampaign(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($2, $3)`,
		id, models.CampaignStatusSending, models.CampaignStatusSent)
	if err != nil {
		return false, fmt.Errorf("marketing repository: claim campaign %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marketing repository: claim campaign %w", err)
	}
	return n == 1, nil
}

// DeleteCampaign удаляет кампанию.
func (r *MarketingRepository) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	return common.DeleteByID(ctx, r.db, "campaigns", id, ErrCampaignNotFound)
}

// ListDueCampaigns возвращает запланированные кампании со временем отправки не позже now.
func (r *MarketingRepository) ListDueCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	items := make([]models.Campaign, 0)
	if err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM campaigns
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at`, models.CampaignStatusScheduled, now); err != nil {
		return nil, fmt.Errorf("marketing repository: list due campaigns %w", err)
	}
	return items, nil
}

// CreateDeliveries сохраняет результаты отправки.
func (r *MarketingRepository) CreateDeliveries(ctx context.Context, deliveries []models.CampaignDelivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		inserter := common.NewBatchInserter(tx,
			`INSERT INTO campaign_deliveries (id, campaign_id, contact_id, recipient, status, error, sent_at)`, 7, 200)
		for i := range deliveries {
			d := &deliveries[i]
			if d.ID == uuid.Nil {
				d.ID = uuid.New()
			}
			if err := inserter.Add(ctx, d.ID, d.CampaignID, d.ContactID, d.Recipient, d.Status, d.Error, d.SentAt); err != nil {
				return fmt.Errorf("marketing repository: deliveries %w", err)
			}
		}
		if err := inserter.Flush(ctx); err != nil {
			return fmt.Errorf("marketing repository: deliveries %w", err)
		}
		return nil
	})
}

// ListDeliveries возвращает доставки кампании.
func (r *MarketingRepository) ListDeliveries(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignDelivery, error) {
	items := make([]models.CampaignDelivery, 0)
	if err := r.db.SelectContext(ctx, &items,
		`SELECT * FROM campaign_deliveries WHERE campaign_id = $1 ORDER BY sent_at NULLS LAST`, campaignID); err != nil {
		return nil, fmt.Errorf("marketing repository: list deliveries %w", err)
	}
	return items, nil
}
