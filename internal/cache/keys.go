package cache

import "github.com/google/uuid"

// DashboardKey ключ дашборда пользователя.
func DashboardKey(userID uuid.UUID) string {
	return "dashboard:" + userID.String()
}

// DashboardPrefix префикс всех дашбордов.
const DashboardPrefix = "dashboard:"

// PipelineReportKey ключ отчёта по воронке.
const PipelineReportKey = "reports:pipeline"

// ReportsPrefix префикс всех отчётов.
const ReportsPrefix = "reports:"
