package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinDisplayNameLength = 2
	MaxDisplayNameLength = 100
	MaxNameLength        = 100
	MaxTitleLength       = 200
	MaxNotesLength       = 10000
	MaxTagLength         = 50
	MaxTagsCount         = 30
	MinMessageLength     = 1
	MaxMessageLength     = 4000
	MaxURLLength         = 500
)

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._%+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	phoneRegex       = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)
	fieldKeyRegex    = regexp.MustCompile(`^[a-z][a-z0-9_]{1,49}$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	localPart, domainPart, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domainPart, "@") {
		return fmt.Errorf("некорректный формат email")
	}
	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}
	if !emailLocalRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidatePhone проверяет номер телефона в свободном международном формате.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("некорректный номер телефона")
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateRequired проверяет, что строка не пустая и не длиннее max.
func ValidateRequired(fieldName, value string, max int) error {
	if err := ValidateNonEmpty(fieldName, value); err != nil {
		return err
	}
	return ValidateLength(fieldName, strings.TrimSpace(value), 0, max)
}

// ValidateDisplayName проверяет отображаемое имя.
func ValidateDisplayName(displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("отображаемое имя обязательно")
	}
	return ValidateLength("отображаемое имя", displayName, MinDisplayNameLength, MaxDisplayNameLength)
}

// ValidateTags проверяет список тегов.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTagsCount {
		return fmt.Errorf("не более %d тегов", MaxTagsCount)
	}
	for _, tag := range tags {
		if err := ValidateRequired("тег", tag, MaxTagLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidateURL проверяет http(s) ссылку.
func ValidateURL(fieldName, link string) error {
	link = strings.TrimSpace(link)
	if err := ValidateLength(fieldName, link, 0, MaxURLLength); err != nil {
		return err
	}

	parsedURL, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("%s: некорректный формат URL", fieldName)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s должна начинаться с http:// или https://", fieldName)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s должна содержать доменное имя", fieldName)
	}
	return nil
}

// ValidateMessageContent проверяет сообщение для AI-ассистента.
func ValidateMessageContent(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("сообщение не может быть пустым")
	}
	return ValidateLength("сообщение", content, MinMessageLength, MaxMessageLength)
}

// ValidateFieldKey проверяет ключ пользовательского поля.
func ValidateFieldKey(key string) error {
	if !fieldKeyRegex.MatchString(key) {
		return fmt.Errorf("ключ поля должен начинаться с латинской буквы и содержать 2-50 символов a-z, 0-9, _")
	}
	return nil
}
