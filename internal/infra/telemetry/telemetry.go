package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/remon646/staffdesk-authz/internal/infra/config"
)

// Provider holds the engine's authorization metrics.
type Provider struct {
	checkCounter  prometheus.Counter
	denialCounter prometheus.Counter
}

// Attach registers the authorization metrics and returns a provider
// handle.
func Attach(cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	checks := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authz",
		Name:      "permission_checks_total",
		Help:      "Total number of permission checks evaluated",
	})

	denials := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authz",
		Name:      "permission_denials_total",
		Help:      "Total number of permission checks that were denied",
	})

	return &Provider{
		checkCounter:  checks,
		denialCounter: denials,
	}, nil
}

// ObserveCheck records one permission check and whether it was allowed.
// Safe to call on a nil provider.
func (p *Provider) ObserveCheck(allowed bool) {
	if p == nil {
		return
	}
	p.checkCounter.Inc()
	if !allowed {
		p.denialCounter.Inc()
	}
}
