package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/common"
)

// ProposalRepository отвечает за предложения и их строки.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository создаёт экземпляр репозитория.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create сохраняет предложение вместе со строками.
func (r *ProposalRepository) Create(ctx context.Context, p *models.Proposal) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO proposals (number, title, contact_id, deal_id, owner_id, status, currency, subtotal, discount,
				tax_rate, total, valid_until, introduction, terms, public_token)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id, created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			p.Number, p.Title, p.ContactID, p.DealID, p.OwnerID, p.Status, p.Currency, p.Subtotal, p.Discount,
			p.TaxRate, p.Total, p.ValidUntil, p.Introduction, p.Terms, p.PublicToken,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return fmt.Errorf("proposal repository: create %w", err)
		}
		return insertProposalItems(ctx, tx, p)
	})
}

func insertProposalItems(ctx context.Context, tx *sqlx.Tx, p *models.Proposal) error {
	inserter := common.NewBatchInserter(tx,
		`INSERT INTO proposal_items (id, proposal_id, description, quantity, unit_price, position)`, 6, 100)
	for i := range p.Items {
		item := &p.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.ProposalID = p.ID
		item.Position = i
		if err := inserter.Add(ctx, item.ID, item.ProposalID, item.Description, item.Quantity, item.UnitPrice, item.Position); err != nil {
			return fmt.Errorf("proposal repository: items %w", err)
		}
	}
	if err := inserter.Flush(ctx); err != nil {
		return fmt.Errorf("proposal repository: items %w", err)
	}
	return nil
}

// GetByID возвращает предложение со строками.
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return r.getBy(ctx, "id", id)
}

// GetByToken возвращает предложение по публичному токену.
func (r *ProposalRepository) GetByToken(ctx context.Context, token string) (*models.Proposal, error) {
	return r.getBy(ctx, "public_token", token)
}

func (r *ProposalRepository) getBy(ctx context.Context, field string, value interface{}) (*models.Proposal, error) {
	var p models.Proposal
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM proposals WHERE `+field+` = $1`, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal repository: get by %s %w", field, err)
	}

	p.Items = make([]models.ProposalItem, 0)
	if err := r.db.SelectContext(ctx, &p.Items,
		`SELECT * FROM proposal_items WHERE proposal_id = $1 ORDER BY position`, p.ID); err != nil {
		return nil, fmt.Errorf("proposal repository: get items %w", err)
	}
	return &p, nil
}

// Update сохраняет поля предложения и заменяет строки.
func (r *ProposalRepository) Update(ctx context.Context, p *models.Proposal) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := saveProposal(ctx, tx, p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM proposal_items WHERE proposal_id = $1`, p.ID); err != nil {
			return fmt.Errorf("proposal repository: clear items %w", err)
		}
		return insertProposalItems(ctx, tx, p)
	})
}

// Save сохраняет поля предложения без строк (статус, подпись, отметки времени).
func (r *ProposalRepository) Save(ctx context.Context, p *models.Proposal) error {
	return saveProposal(ctx, r.db, p)
}

func saveProposal(ctx context.Context, q sqlx.QueryerContext, p *models.Proposal) error {
	query := `
		UPDATE proposals
		SET title = $2, contact_id = $3, deal_id = $4, status = $5, currency = $6, subtotal = $7, discount = $8,
			tax_rate = $9, total = $10, valid_until = $11, introduction = $12, terms = $13, signer_name = $14,
			signer_email = $15, signature_data = $16, signed_at = $17, sent_at = $18, viewed_at = $19,
			pdf_key = $20, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := q.QueryRowxContext(ctx, query,
		p.ID, p.Title, p.ContactID, p.DealID, p.Status, p.Currency, p.Subtotal, p.Discount,
		p.TaxRate, p.Total, p.ValidUntil, p.Introduction, p.Terms, p.SignerName,
		p.SignerEmail, p.SignatureData, p.SignedAt, p.SentAt, p.ViewedAt, p.PDFKey,
	).Scan(&p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProposalNotFound
		}
		return fmt.Errorf("proposal repository: save %w", err)
	}
	return nil
}

// Delete удаляет предложение; строки удаляются каскадно.
func (r *ProposalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return common.DeleteByID(ctx, r.db, "proposals", id, ErrProposalNotFound)
}

// List возвращает страницу предложений без строк.
func (r *ProposalRepository) List(ctx context.Context, f models.ProposalFilter) ([]models.Proposal, int, error) {
	var cond common.Conditions
	if f.Status != "" {
		cond.Add("status = ?", f.Status)
	}
	if f.ContactID != nil {
		cond.Add("contact_id = ?", *f.ContactID)
	}
	if f.DealID != nil {
		cond.Add("deal_id = ?", *f.DealID)
	}

	where := cond.Where()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM proposals`+where, cond.Args()...); err != nil {
		return nil, 0, fmt.Errorf("proposal repository: count %w", err)
	}

	items := make([]models.Proposal, 0)
	query := `SELECT * FROM proposals` + where + ` ORDER BY created_at DESC` + cond.Page(f.Limit, f.Offset)
	if err := r.db.SelectContext(ctx, &items, query, cond.Args()...); err != nil {
		return nil, 0, fmt.Errorf("proposal repository: list %w", err)
	}
	return items, total, nil
}

// NextSequence возвращает следующий порядковый номер предложения с данным префиксом.
func (r *ProposalRepository) NextSequence(ctx context.Context, prefix string) (int, error) {
	var next int
	query := `
		SELECT COALESCE(MAX(CAST(substring(number FROM length($1::text) + 1) AS INT)), 0) + 1
		FROM proposals
		WHERE number LIKE $1::text || '%'
	`
	if err := r.db.GetContext(ctx, &next, query, prefix); err != nil {
		return 0, fmt.Errorf("proposal repository: next sequence %w", err)
	}
	return next, nil
}
