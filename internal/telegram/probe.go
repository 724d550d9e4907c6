package telegram

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Prober checks basic network reachability independently of the Bot API, so
// a sustained poll failure can be told apart from a Telegram outage.
type Prober struct {
	// Dial is injectable for tests; nil means a plain TCP dial.
	Dial   func(ctx context.Context, network, address string) (net.Conn, error)
	Target string
	Logger *slog.Logger

	// Sleep is injectable for tests; nil means time.Sleep.
	Sleep func(d time.Duration)
}

const (
	defaultProbeTarget  = "8.8.8.8:53"
	defaultProbeTimeout = 5 * time.Second
	maxProbeWait        = 60 * time.Second
)

func (p Prober) Reachable(ctx context.Context) bool {
	target := p.Target
	if target == "" {
		target = defaultProbeTarget
	}
	dial := p.Dial
	if dial == nil {
		d := &net.Dialer{Timeout: defaultProbeTimeout}
		dial = d.DialContext
	}
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()
	conn, err := dial(probeCtx, "tcp", target)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitForConnection blocks until reachability returns or maxWait elapses,
// probing with gradually growing pauses. Reports whether the network came
// back.
func (p Prober) WaitForConnection(ctx context.Context, maxWait time.Duration) bool {
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	wait := 5 * time.Second
	var waited time.Duration
	for waited < maxWait {
		if ctx.Err() != nil {
			return false
		}
		if p.Reachable(ctx) {
			if p.Logger != nil {
				p.Logger.Info("network_reachable_again")
			}
			return true
		}
		if p.Logger != nil {
			p.Logger.Warn("network_unreachable_waiting", "wait", wait.String())
		}
		sleep(wait)
		waited += wait
		wait = time.Duration(float64(wait) * 1.2)
		if wait > maxProbeWait {
			wait = maxProbeWait
		}
	}
	if p.Logger != nil {
		p.Logger.Error("network_unreachable_gave_up", "waited", waited.String())
	}
	return false
}
