package announce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"announcer/pkg/logx"
)

// Poller periodically drives Service.RunDue. One tick lists due records and
// executes them sequentially; SkipIfStillRunning guarantees ticks never
// overlap, so a slow delivery delays the next tick instead of racing it.
type Poller struct {
	svc      *Service
	log      logx.Logger
	interval time.Duration
	loc      *time.Location

	mu      sync.Mutex
	c       *cron.Cron
	baseCtx context.Context
}

func NewPoller(svc *Service, interval time.Duration, loc *time.Location, log logx.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{svc: svc, log: log, interval: interval, loc: loc}
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return nil
	}

	p.baseCtx = ctx
	c := cron.New(
		cron.WithLocation(p.loc),
		cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), p.tick); err != nil {
		return err
	}
	c.Start()
	p.c = c
	p.log.Info("poller started", logx.Duration("interval", p.interval), logx.String("tz", p.loc.String()))
	return nil
}

func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.mu.Unlock()
	if c == nil {
		return
	}

	stopped := c.Stop()
	select {
	case <-stopped.Done():
		p.log.Info("poller stopped")
	case <-ctx.Done():
		p.log.Warn("poller stop timed out; tick finishing in background")
	}
}

func (p *Poller) tick() {
	p.mu.Lock()
	base := p.baseCtx
	p.mu.Unlock()
	if base == nil || base.Err() != nil {
		return
	}

	// Bound one tick so a wedged gateway call can't freeze the loop forever.
	ctx, cancel := context.WithTimeout(base, 2*time.Minute)
	defer cancel()

	p.svc.RunDue(ctx, time.Now().In(p.loc))
}
