package repos

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/metrics"
)

// BreakerConfig configures the upstream circuit breakers
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func newBreaker(source string, cfg BreakerConfig, log *logger.Logger, reg *metrics.Registry) *gobreaker.CircuitBreaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 호출자 취소는 저장소 장애가 아님
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			reg.SetBreakerState(name, int(to))
			log.WithFields(map[string]interface{}{
				"source": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Upstream circuit breaker state changed")
		},
	})
}

// BreakerSignalStore fails fast while the signal store keeps failing
type BreakerSignalStore struct {
	next contracts.SignalStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSignalStore wraps next with a circuit breaker
func NewBreakerSignalStore(next contracts.SignalStore, cfg BreakerConfig, log *logger.Logger, reg *metrics.Registry) *BreakerSignalStore {
	return &BreakerSignalStore{next: next, cb: newBreaker(contracts.SourceSignals, cfg, log, reg)}
}

func (s *BreakerSignalStore) ActiveSignals(ctx context.Context, instrumentID string) ([]contracts.Signal, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.ActiveSignals(ctx, instrumentID)
	})
	if err != nil {
		return nil, contracts.Upstream(contracts.SourceSignals, err)
	}
	return out.([]contracts.Signal), nil
}

func (s *BreakerSignalStore) AllActiveSignals(ctx context.Context) ([]contracts.Signal, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.AllActiveSignals(ctx)
	})
	if err != nil {
		return nil, contracts.Upstream(contracts.SourceSignals, err)
	}
	return out.([]contracts.Signal), nil
}

// State reports the breaker state
func (s *BreakerSignalStore) State() gobreaker.State { return s.cb.State() }

// BreakerFundamentalStore fails fast while the fundamental store keeps failing
type BreakerFundamentalStore struct {
	next contracts.FundamentalStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerFundamentalStore wraps next with a circuit breaker
func NewBreakerFundamentalStore(next contracts.FundamentalStore, cfg BreakerConfig, log *logger.Logger, reg *metrics.Registry) *BreakerFundamentalStore {
	return &BreakerFundamentalStore{next: next, cb: newBreaker(contracts.SourceFundamentals, cfg, log, reg)}
}

func (s *BreakerFundamentalStore) LatestRecord(ctx context.Context, instrumentID string) (*contracts.FundamentalRecord, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.LatestRecord(ctx, instrumentID)
	})
	if err != nil {
		return nil, contracts.Upstream(contracts.SourceFundamentals, err)
	}
	return out.(*contracts.FundamentalRecord), nil
}

func (s *BreakerFundamentalStore) AllLatestRecords(ctx context.Context) ([]contracts.FundamentalRecord, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.AllLatestRecords(ctx)
	})
	if err != nil {
		return nil, contracts.Upstream(contracts.SourceFundamentals, err)
	}
	return out.([]contracts.FundamentalRecord), nil
}

// State reports the breaker state
func (s *BreakerFundamentalStore) State() gobreaker.State { return s.cb.State() }
