package circuit_breaker_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/lending-service/pkg/circuit_breaker"
)

func Test_circuitBreaker_Call(t *testing.T) {
	successfulService := func() error { return nil }
	failingService := func() error { return errors.New("service error") }

	cb := circuit_breaker.New(10, 200*time.Millisecond, 0.3, 3)

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Call(successfulService))
	}

	// enough failures to trip the breaker
	for i := 0; i < 10; i++ {
		_ = cb.Call(failingService)
	}
	err := cb.Call(successfulService)
	require.ErrorIs(t, err, circuit_breaker.ErrOpenCB)

	// after the timeout the breaker lets trial requests through and recovers
	time.Sleep(250 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, cb.Call(successfulService))
	}
	require.NoError(t, cb.Call(successfulService))
}

func Test_circuitBreaker_Reset(t *testing.T) {
	failingService := func() error { return errors.New("service error") }

	cb := circuit_breaker.New(4, time.Minute, 0.5, 1)
	for i := 0; i < 4; i++ {
		_ = cb.Call(failingService)
	}
	require.ErrorIs(t, cb.Call(failingService), circuit_breaker.ErrOpenCB)

	cb.Reset()
	require.NoError(t, cb.Call(func() error { return nil }))
}
