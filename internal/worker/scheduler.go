package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Poller refreshes connectivity on a cron schedule such as "@every 30s".
type Poller struct {
	schedule string
	trigger  *Trigger
	cron     *cron.Cron
	logger   *zerolog.Logger
	timeout  time.Duration
}

func NewPoller(schedule string, trigger *Trigger, logger *zerolog.Logger) *Poller {
	cl := cronLogger{logger: logger}
	return &Poller{
		schedule: schedule,
		trigger:  trigger,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:   logger,
		timeout:  time.Minute,
	}
}

// Start schedules polling. An empty schedule disables it.
func (p *Poller) Start() error {
	if p.schedule == "" {
		p.logger.Info().Msg("connectivity polling disabled")
		return nil
	}
	if _, err := p.cron.AddFunc(p.schedule, p.poll); err != nil {
		return fmt.Errorf("schedule connectivity poll %q: %w", p.schedule, err)
	}
	p.cron.Start()
	p.logger.Info().Str("schedule", p.schedule).Msg("connectivity polling started")
	return nil
}

// Stop halts the schedule and waits for a running poll to return.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	online, result, err := p.trigger.Refresh(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("scheduled sync failed")
		return
	}
	if result != nil {
		p.logger.Info().Int("succeeded", len(result.Succeeded)).Int("failed", len(result.Failed)).Msg("scheduled sync finished")
		return
	}
	p.logger.Debug().Bool("online", online).Msg("connectivity polled")
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
