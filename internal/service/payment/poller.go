package payment

import (
	"context"
	"sync"
	"time"

	"github.com/nganya/nganya-web/internal/domain"
	"github.com/nganya/nganya-web/internal/monitoring"
	"github.com/nganya/nganya-web/internal/upstream"
)

// StatusFunc queries the backend for the state of a checkout request.
type StatusFunc func(ctx context.Context, token string) (*upstream.StatusResponse, error)

// Hooks are invoked by the poll loop as it observes statuses. Terminal
// hooks fire at most once per Start; OnPending may fire repeatedly.
type Hooks struct {
	OnPaid    func(ctx context.Context, token, ticketCode string)
	OnFailed  func(ctx context.Context, token string)
	OnPending func(ctx context.Context, token string)
}

// Poller drives the payment status loop for one checkout token at a
// time: one immediate query at activation, then one per interval until
// a terminal status arrives or the loop is stopped. There is no attempt
// cap; abandoning the flow is the only other way out.
//
// Cancellation is centralized here: stopping the poller cancels the
// run's context, and a query already in flight checks that context
// before applying its result, so a stale response is a no-op.
type Poller struct {
	status   StatusFunc
	interval time.Duration
	hooks    Hooks

	mu     sync.Mutex
	token  string
	cancel context.CancelFunc
}

func New(status StatusFunc, interval time.Duration, hooks Hooks) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}

	return &Poller{
		status:   status,
		interval: interval,
		hooks:    hooks,
	}
}

// Start begins polling for token, tearing down any previous loop first.
// An empty token is a no-op: there is nothing to query, and the status
// endpoint must never be hit without one.
func (p *Poller) Start(token string) {
	p.Stop()

	if token == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.token = token
	p.cancel = cancel
	p.mu.Unlock()

	monitoring.PollStarted()

	go p.run(ctx, cancel, token)
}

// Stop cancels the active loop, if any. An in-flight query started by
// that loop will see the cancellation and discard its result.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.token = ""
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Active reports whether a poll loop currently owns a token.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token != ""
}

// Token returns the checkout token of the active loop, or "".
func (p *Poller) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, token string) {
	defer monitoring.PollStopped()
	defer cancel()

	t := time.NewTicker(p.interval)
	defer t.Stop()

	// one query right away, the first interval tick comes later
	if p.tick(ctx, token) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if p.tick(ctx, token) {
				return
			}
		}
	}
}

// tick runs one status query and applies its result. It reports whether
// the loop should stop.
func (p *Poller) tick(ctx context.Context, token string) bool {
	// a ticker fire can race the cancellation; never query after Stop
	if ctx.Err() != nil {
		return true
	}

	res, err := p.status(ctx, token)

	// a cancelled loop never applies results, not even terminal ones
	if ctx.Err() != nil {
		return true
	}

	if err != nil {
		// transient, keep polling
		monitoring.PaymentPoll("error")
		return false
	}

	switch domain.NormalizeStatus(res.PaymentStatus) {
	case domain.PaymentPaid:
		monitoring.PaymentPoll("paid")
		p.clearToken(token)
		if p.hooks.OnPaid != nil {
			p.hooks.OnPaid(ctx, token, res.TicketCode)
		}
		return true
	case domain.PaymentFailed:
		monitoring.PaymentPoll("failed")
		p.clearToken(token)
		if p.hooks.OnFailed != nil {
			p.hooks.OnFailed(ctx, token)
		}
		return true
	default:
		monitoring.PaymentPoll("pending")
		if p.hooks.OnPending != nil {
			p.hooks.OnPending(ctx, token)
		}
		return false
	}
}

// clearToken releases ownership of token without cancelling the run; the
// caller is already on its way out and may still invoke a terminal hook
// with a live context.
func (p *Poller) clearToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == token {
		p.token = ""
		p.cancel = nil
	}
}
