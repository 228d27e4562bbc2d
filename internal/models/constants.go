package models

// Роли пользователей CRM.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleAgent   = "agent"
)

// Статусы контактов.
const (
	ContactStatusLead     = "lead"
	ContactStatusProspect = "prospect"
	ContactStatusCustomer = "customer"
	ContactStatusInactive = "inactive"
)

// Статусы сделок.
const (
	DealStatusOpen = "open"
	DealStatusWon  = "won"
	DealStatusLost = "lost"
)

// Типы активностей.
const (
	ActivityTypeCall     = "call"
	ActivityTypeEmail    = "email"
	ActivityTypeMeeting  = "meeting"
	ActivityTypeNote     = "note"
	ActivityTypeTask     = "task"
	ActivityTypeWhatsApp = "whatsapp"
)

// Статусы коммерческих предложений.
const (
	ProposalStatusDraft    = "draft"
	ProposalStatusSent     = "sent"
	ProposalStatusViewed   = "viewed"
	ProposalStatusAccepted = "accepted"
	ProposalStatusRejected = "rejected"
	ProposalStatusExpired  = "expired"
)

// Каналы и статусы маркетинговых кампаний.
const (
	CampaignChannelEmail    = "email"
	CampaignChannelWhatsApp = "whatsapp"

	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusSent      = "sent"
	CampaignStatusFailed    = "failed"
)

// Статусы доставки сообщения кампании.
const (
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
	DeliveryStatusSkipped = "skipped"
)

// Статусы встреч.
const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
)

// Сущности, для которых настраиваются поля форм.
const (
	FieldEntityContact = "contact"
	FieldEntityDeal    = "deal"
)

// Типы полей форм.
const (
	FieldTypeText     = "text"
	FieldTypeTextarea = "textarea"
	FieldTypeNumber   = "number"
	FieldTypeDate     = "date"
	FieldTypeSelect   = "select"
	FieldTypeBoolean  = "boolean"
	FieldTypeEmail    = "email"
	FieldTypePhone    = "phone"
	FieldTypeURL      = "url"
)

// ValidRoles список допустимых ролей.
var ValidRoles = map[string]struct{}{
	RoleAdmin:   {},
	RoleManager: {},
	RoleAgent:   {},
}

// ValidContactStatuses список допустимых статусов контактов.
var ValidContactStatuses = map[string]struct{}{
	ContactStatusLead:     {},
	ContactStatusProspect: {},
	ContactStatusCustomer: {},
	ContactStatusInactive: {},
}

// ValidDealStatuses список допустимых статусов сделок.
var ValidDealStatuses = map[string]struct{}{
	DealStatusOpen: {},
	DealStatusWon:  {},
	DealStatusLost: {},
}

// ValidActivityTypes список допустимых типов активностей.
var ValidActivityTypes = map[string]struct{}{
	ActivityTypeCall:     {},
	ActivityTypeEmail:    {},
	ActivityTypeMeeting:  {},
	ActivityTypeNote:     {},
	ActivityTypeTask:     {},
	ActivityTypeWhatsApp: {},
}

// ValidProposalStatuses список допустимых статусов предложений.
var ValidProposalStatuses = map[string]struct{}{
	ProposalStatusDraft:    {},
	ProposalStatusSent:     {},
	ProposalStatusViewed:   {},
	ProposalStatusAccepted: {},
	ProposalStatusRejected: {},
	ProposalStatusExpired:  {},
}

// ValidCampaignChannels список допустимых каналов рассылки.
var ValidCampaignChannels = map[string]struct{}{
	CampaignChannelEmail:    {},
	CampaignChannelWhatsApp: {},
}

// ValidCampaignStatuses список допустимых статусов кампаний.
var ValidCampaignStatuses = map[string]struct{}{
	CampaignStatusDraft:     {},
	CampaignStatusScheduled: {},
	CampaignStatusSending:   {},
	CampaignStatusSent:      {},
	CampaignStatusFailed:    {},
}

// ValidAppointmentStatuses список допустимых статусов встреч.
var ValidAppointmentStatuses = map[string]struct{}{
	AppointmentStatusScheduled: {},
	AppointmentStatusCompleted: {},
	AppointmentStatusCancelled: {},
}

// ValidFieldEntities список сущностей с настраиваемыми полями.
var ValidFieldEntities = map[string]struct{}{
	FieldEntityContact: {},
	FieldEntityDeal:    {},
}

// ValidFieldTypes список допустимых типов полей.
var ValidFieldTypes = map[string]struct{}{
	FieldTypeText:     {},
	FieldTypeTextarea: {},
	FieldTypeNumber:   {},
	FieldTypeDate:     {},
	FieldTypeSelect:   {},
	FieldTypeBoolean:  {},
	FieldTypeEmail:    {},
	FieldTypePhone:    {},
	FieldTypeURL:      {},
}

// IsValid проверяет наличие значения в словаре.
func IsValid(vocabulary map[string]struct{}, value string) bool {
	_, ok := vocabulary[value]
	return ok
}
