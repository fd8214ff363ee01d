package wsconn

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeartbeatExpiresOnSilentPeer(t *testing.T) {
	var pings, expires atomic.Int32
	h := NewHeartbeat(50*time.Millisecond, 30*time.Millisecond, false,
		func() { pings.Add(1) },
		func() { expires.Add(1) },
	)
	h.Start()
	defer h.Stop()

	require.Eventually(t, func() bool { return expires.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, pings.Load(), int32(1))
}

func TestHeartbeatTouchKeepsAlive(t *testing.T) {
	var expires atomic.Int32
	h := NewHeartbeat(30*time.Millisecond, 60*time.Millisecond, false,
		func() {},
		func() { expires.Add(1) },
	)
	h.Start()
	defer h.Stop()

	// Steady inbound traffic always resets the pong timer.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		h.Touch(false)
		time.Sleep(10 * time.Millisecond)
	}
	require.Zero(t, expires.Load())
}

func TestHeartbeatStrictIgnoresNonPong(t *testing.T) {
	var expires atomic.Int32
	h := NewHeartbeat(30*time.Millisecond, 60*time.Millisecond, true,
		func() {},
		func() { expires.Add(1) },
	)
	h.Start()
	defer h.Stop()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		h.Touch(false)
		time.Sleep(10 * time.Millisecond)
	}
	require.GreaterOrEqual(t, expires.Load(), int32(1))
}

func TestHeartbeatPauseResume(t *testing.T) {
	var pings, expires atomic.Int32
	h := NewHeartbeat(time.Hour, time.Hour, false,
		func() { pings.Add(1) },
		func() { expires.Add(1) },
	)
	h.Start()
	defer h.Stop()

	h.Pause()
	require.Zero(t, pings.Load())

	// Resume probes right away instead of waiting out the interval.
	h.Resume()
	require.Eventually(t, func() bool { return pings.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Zero(t, expires.Load())
}

func TestHeartbeatStopDisarms(t *testing.T) {
	var expires atomic.Int32
	h := NewHeartbeat(10*time.Millisecond, 20*time.Millisecond, false,
		func() {},
		func() { expires.Add(1) },
	)
	h.Start()
	time.Sleep(15 * time.Millisecond)
	h.Stop()

	before := expires.Load()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, before, expires.Load())
}

func TestHeartbeatNilSafe(t *testing.T) {
	var h *Heartbeat
	h.Start()
	h.Stop()
	h.Pause()
	h.Resume()
	h.Touch(true)
}
