// Package fields описывает конфигурацию полей форм контактов и сделок:
// системные поля по умолчанию и проверку значений пользовательских полей.
package fields

import (
	_ "embed"
	"fmt"
	"net/mail"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ignatzorin/crm-backend/internal/models"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var defaults map[string][]models.FieldConfig

// DefaultIDPrefix отмечает поля по умолчанию, которые ещё не сохранены в хранилище.
const DefaultIDPrefix = "default:"

func init() {
	parsed, err := parseDefaults(defaultsYAML)
	if err != nil {
		panic(err)
	}
	defaults = parsed
}

func parseDefaults(data []byte) (map[string][]models.FieldConfig, error) {
	var raw map[string][]models.FieldConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("fields: разбор значений по умолчанию: %w", err)
	}
	for entity, list := range raw {
		for i := range list {
			list[i].Entity = entity
			list[i].ID = DefaultIDPrefix + entity + ":" + list[i].Key
			if list[i].Options == nil {
				list[i].Options = []string{}
			}
		}
	}
	return raw, nil
}

// Defaults возвращает копию полей по умолчанию для сущности.
func Defaults(entity string) []models.FieldConfig {
	src := defaults[entity]
	out := make([]models.FieldConfig, len(src))
	for i, f := range src {
		f.Options = append([]string{}, f.Options...)
		out[i] = f
	}
	return out
}

// IsSystemKey сообщает, является ли ключ системным полем сущности.
func IsSystemKey(entity, key string) bool {
	for _, f := range defaults[entity] {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Merge объединяет сохранённые настройки с полями по умолчанию.
// Сохранённая настройка заменяет поле по умолчанию с тем же ключом,
// отсутствующие в хранилище поля по умолчанию добавляются. Результат упорядочен по position.
func Merge(entity string, stored []models.FieldConfig) []models.FieldConfig {
	byKey := make(map[string]struct{}, len(stored))
	out := make([]models.FieldConfig, 0, len(stored)+len(defaults[entity]))
	for _, f := range stored {
		if IsSystemKey(entity, f.Key) {
			f.IsSystem = true
		}
		byKey[f.Key] = struct{}{}
		out = append(out, f)
	}
	for _, f := range Defaults(entity) {
		if _, ok := byKey[f.Key]; !ok {
			out = append(out, f)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		// системные поля раньше пользовательских при равной позиции
		if out[i].IsSystem != out[j].IsSystem {
			return out[i].IsSystem
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Prune удаляет из values ключи, которые уже хранились у сущности (stored),
// но больше не описаны пользовательским полем: поле удалили после сохранения.
// Новые неизвестные ключи остаются и отклоняются ValidateValues. Возвращает удалённые ключи.
func Prune(configs []models.FieldConfig, values, stored models.CustomFields) []string {
	known := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		if !cfg.IsSystem {
			known[cfg.Key] = struct{}{}
		}
	}
	var dropped []string
	for key := range values {
		if _, ok := known[key]; ok {
			continue
		}
		if _, orphan := stored[key]; orphan {
			dropped = append(dropped, key)
			delete(values, key)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// ValidateValues проверяет значения пользовательских полей по конфигурации.
// Системные поля пропускаются: они хранятся в колонках сущности.
func ValidateValues(configs []models.FieldConfig, values models.CustomFields) error {
	known := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		if cfg.IsSystem {
			continue
		}
		known[cfg.Key] = struct{}{}

		value, present := values[cfg.Key]
		if !present || isEmpty(value) {
			if cfg.Required {
				return fmt.Errorf("поле %q обязательно", cfg.Label)
			}
			continue
		}
		if err := validateValue(cfg, value); err != nil {
			return err
		}
	}

	for key := range values {
		if _, ok := known[key]; !ok {
			return fmt.Errorf("неизвестное поле %q", key)
		}
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func validateValue(cfg models.FieldConfig, value any) error {
	switch cfg.Type {
	case models.FieldTypeNumber:
		switch v := value.(type) {
		case float64, int, int64:
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
				return fmt.Errorf("поле %q должно быть числом", cfg.Label)
			}
		default:
			return fmt.Errorf("поле %q должно быть числом", cfg.Label)
		}
	case models.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("поле %q должно быть true или false", cfg.Label)
		}
	case models.FieldTypeSelect:
		s, ok := value.(string)
		if !ok || !contains(cfg.Options, s) {
			return fmt.Errorf("поле %q должно быть одним из: %s", cfg.Label, strings.Join(cfg.Options, ", "))
		}
	case models.FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("поле %q должно быть датой", cfg.Label)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				return fmt.Errorf("поле %q должно быть датой", cfg.Label)
			}
		}
	case models.FieldTypeEmail:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("поле %q должно быть email", cfg.Label)
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return fmt.Errorf("поле %q должно быть email", cfg.Label)
		}
	case models.FieldTypeURL:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("поле %q должно быть ссылкой", cfg.Label)
		}
		if u, err := url.ParseRequestURI(s); err != nil || u.Host == "" {
			return fmt.Errorf("поле %q должно быть ссылкой", cfg.Label)
		}
	default:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("поле %q должно быть строкой", cfg.Label)
		}
	}
	return nil
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
