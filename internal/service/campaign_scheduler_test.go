package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSender struct {
	calls atomic.Int32
	panic bool
	err   error
}

func (s *countingSender) SendDue(context.Context) (int, error) {
	n := s.calls.Add(1)
	if s.panic && n == 1 {
		panic("smtp exploded")
	}
	return 1, s.err
}

func TestCampaignScheduler_TicksUntilCancelled(t *testing.T) {
	sender := &countingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewCampaignScheduler(sender, 5*time.Millisecond).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sender.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("планировщик не остановился")
	}
}

func TestCampaignScheduler_SurvivesPanicAndErrors(t *testing.T) {
	for name, sender := range map[string]*countingSender{
		"panic": {panic: true},
		"error": {err: errors.New("db down")},
	} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go NewCampaignScheduler(sender, 5*time.Millisecond).Run(ctx)

			require.Eventually(t, func() bool { return sender.calls.Load() >= 2 }, time.Second, time.Millisecond)
		})
	}
}

func TestNewCampaignScheduler_DefaultInterval(t *testing.T) {
	assert.Equal(t, time.Minute, NewCampaignScheduler(&countingSender{}, 0).interval)
}
