package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("secret123"))
	assert.ErrorContains(t, ValidatePassword("short1"), "не менее 8")
	assert.ErrorContains(t, ValidatePassword("12345678"), "букву")
	assert.ErrorContains(t, ValidatePassword("password"), "цифру")
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("Anna.Smith+crm@Example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("no-at.example.com"))
	assert.Error(t, ValidateEmail("a@b@example.com"))
	assert.Error(t, ValidateEmail("user@localhost"))
}

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("+7 (999) 123-45-67"))
	assert.NoError(t, ValidatePhone("5551234"))
	assert.Error(t, ValidatePhone("call me"))
	assert.Error(t, ValidatePhone("12"))
}

func TestValidateFieldKey(t *testing.T) {
	assert.NoError(t, ValidateFieldKey("industry"))
	assert.NoError(t, ValidateFieldKey("budget_2026"))
	assert.Error(t, ValidateFieldKey("a"))
	assert.Error(t, ValidateFieldKey("2fa"))
	assert.Error(t, ValidateFieldKey("Industry"))
	assert.Error(t, ValidateFieldKey("a"+strings.Repeat("b", 50)))
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("Привет"))
	assert.Error(t, ValidateMessageContent("   "))
	assert.Error(t, ValidateMessageContent(strings.Repeat("я", MaxMessageLength+1)))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("ссылка", "https://meet.example.com/abc"))
	assert.Error(t, ValidateURL("ссылка", "ftp://example.com"))
	assert.Error(t, ValidateURL("ссылка", "https://"))
}
