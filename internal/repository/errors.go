package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrSessionNotFound     = errors.New("session not found")
	ErrContactNotFound     = errors.New("contact not found")
	ErrStageNotFound       = errors.New("pipeline stage not found")
	ErrDealNotFound        = errors.New("deal not found")
	ErrActivityNotFound    = errors.New("activity not found")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrListNotFound        = errors.New("marketing list not found")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSettingsNotFound    = errors.New("company settings not found")
	ErrFieldNotFound       = errors.New("field config not found")
	ErrFieldExists         = errors.New("field config already exists")
	ErrAttachmentNotFound  = errors.New("attachment not found")
)

// IsNotFound сообщает, является ли ошибка одной из ошибок отсутствия записи.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrUserNotFound, ErrSessionNotFound, ErrContactNotFound, ErrStageNotFound,
		ErrDealNotFound, ErrActivityNotFound, ErrProposalNotFound, ErrListNotFound,
		ErrCampaignNotFound, ErrAppointmentNotFound, ErrSettingsNotFound,
		ErrFieldNotFound, ErrAttachmentNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isUniqueViolation определяет нарушение уникального индекса PostgreSQL.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
