package main

import (
	"time"

	"github.com/economy-energy/crm-aggregator/internal/aggregate"
	"github.com/economy-energy/crm-aggregator/internal/config"
	"github.com/economy-energy/crm-aggregator/internal/resilience"
	"github.com/economy-energy/crm-aggregator/pkg/bitrix"
)

// newAggregator wires the Bitrix transport and the aggregation engine from
// configuration. Shared by the serve and aggregate commands.
func newAggregator(cfg *config.Config) *aggregate.Aggregator {
	client := bitrix.NewClient(bitrix.Options{
		Host:              cfg.Bitrix.Host,
		User:              cfg.Bitrix.User,
		Token:             cfg.Bitrix.Token,
		MaxInFlight:       cfg.Bitrix.MaxInFlight,
		RequestsPerSecond: cfg.Bitrix.RequestsPerSecond,
		Timeout:           time.Duration(cfg.Bitrix.TimeoutSecs) * time.Second,
		Retry: resilience.Policy{
			MaxAttempts: cfg.Bitrix.MaxRetries,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      time.Second,
		},
		Breaker: resilience.NewBreaker(5, 30*time.Second),
	})
	return aggregate.New(client, cfg.Aggregate)
}
