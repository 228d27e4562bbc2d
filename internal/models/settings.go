package models

import "time"

// CompanySettings хранит реквизиты компании (одна строка с id = 1).
type CompanySettings struct {
	CompanyName string    `db:"company_name" json:"company_name"`
	Email       *string   `db:"email" json:"email,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Address     *string   `db:"address" json:"address,omitempty"`
	Website     *string   `db:"website" json:"website,omitempty"`
	LogoURL     *string   `db:"logo_url" json:"logo_url,omitempty"`
	Currency    string    `db:"currency" json:"currency"`
	TaxRate     float64   `db:"tax_rate" json:"tax_rate"`
	Timezone    string    `db:"timezone" json:"timezone"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// FieldConfig описывает настраиваемое поле формы контакта или сделки.
type FieldConfig struct {
	ID        string    `db:"id" json:"id" yaml:"-"`
	Entity    string    `db:"entity" json:"entity" yaml:"-"`
	Key       string    `db:"key" json:"key" yaml:"key"`
	Label     string    `db:"label" json:"label" yaml:"label"`
	Type      string    `db:"type" json:"type" yaml:"type"`
	Options   []string  `db:"options" json:"options" yaml:"options"`
	Required  bool      `db:"required" json:"required" yaml:"required"`
	Visible   bool      `db:"visible" json:"visible" yaml:"visible"`
	Position  int       `db:"position" json:"position" yaml:"position"`
	IsSystem  bool      `db:"is_system" json:"is_system" yaml:"system"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" yaml:"-"`
}

// ChatMessage хранит историю диалога с AI-ассистентом.
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
