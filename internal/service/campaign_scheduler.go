package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/goroutine"
	"github.com/ignatzorin/crm-backend/internal/logger"
)

// DueCampaignSender отправляет кампании, время которых наступило.
type DueCampaignSender interface {
	SendDue(ctx context.Context) (int, error)
}

// CampaignScheduler периодически запускает отправку запланированных кампаний.
type CampaignScheduler struct {
	sender   DueCampaignSender
	interval time.Duration
}

// NewCampaignScheduler создаёт планировщик. Интервал по умолчанию минута.
func NewCampaignScheduler(sender DueCampaignSender, interval time.Duration) *CampaignScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CampaignScheduler{sender: sender, interval: interval}
}

// Run блокируется до отмены ctx.
func (s *CampaignScheduler) Run(ctx context.Context) {
	logger.Log.WithField("interval", s.interval.String()).Info("campaign scheduler: запущен")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("campaign scheduler: остановлен")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick выполняет один проход; паника в отправке не останавливает планировщик.
func (s *CampaignScheduler) tick(ctx context.Context) {
	defer goroutine.DefaultRecoveryHandler.Recover("campaign scheduler")

	sent, err := s.sender.SendDue(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Log.WithError(err).Error("campaign scheduler: ошибка выборки кампаний")
		return
	}
	if sent > 0 {
		logger.Log.WithFields(logrus.Fields{"sent": sent}).Info("campaign scheduler: отправлены запланированные кампании")
	}
}
