package transport

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"servicemarket/internal/logger"
	"servicemarket/internal/metrics"
)

// newBreaker opens after maxFailures consecutive network or 5xx failures and
// probes again after timeout. Application errors (4xx) never count.
func newBreaker(maxFailures int, timeout time.Duration) *gobreaker.CircuitBreaker[*rawResponse] {
	log := logger.WithComponent("transport")
	metrics.BreakerState.Set(0)

	return gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        "backend-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.BreakerState.Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
