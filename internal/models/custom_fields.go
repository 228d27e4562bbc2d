package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CustomFields хранит значения пользовательских полей в jsonb колонке.
type CustomFields map[string]any

// Value реализует driver.Valuer.
func (f CustomFields) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

// Scan реализует sql.Scanner.
func (f *CustomFields) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = CustomFields{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("custom fields: неподдерживаемый тип %T", src)
	}

	out := CustomFields{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("custom fields: %w", err)
		}
	}
	*f = out
	return nil
}
