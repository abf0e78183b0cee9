package circuitbreaker

import (
	"github.com/sony/gobreaker"

	log "github.com/sirupsen/logrus"
)

var (
	// MaxNumOfFailingRequests ...
	MaxNumOfFailingRequests = 10
	// FailingRatio ...
	FailingRatio = 0.6
)

// NewCircuitBreaker is a factory function returning a *gobreaker.CircuitBreaker
// named after the guarded upstream. It trips open once more than
// MaxNumOfFailingRequests requests have been made and the failing ratio has
// reached FailingRatio, and logs every state transition.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := log.WithField("upstream", name)
			if to == gobreaker.StateOpen {
				logger.Warn("upstream seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				logger.Info("checking upstream status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				logger.Info("upstream seems ok, restart allowing requests")
			}
		},
	})
}
