package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing_OneShot(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, ft := openConn(t, r, "/")
	ft.pingDelay = 2 * time.Millisecond

	assert.Zero(t, r.PingTime(c.ID()))
	require.NoError(t, r.EnablePing(c.ID(), 0))

	require.Eventually(t, func() bool { return r.PingTime(c.ID()) > 0 }, time.Second, 2*time.Millisecond)
	assert.GreaterOrEqual(t, r.PingTime(c.ID()), 2*time.Millisecond)
	assert.Equal(t, int32(1), ft.pings.Load())
}

func TestPing_RecurringAndDisable(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, ft := openConn(t, r, "/")

	require.NoError(t, r.EnablePing(c.ID(), 5*time.Millisecond))
	require.Eventually(t, func() bool { return ft.pings.Load() >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, r.DisablePing(c.ID()))
	after := ft.pings.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ft.pings.Load(), "no probe after DisablePing returned")
}

func TestPing_ReplaceSchedule(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, ft := openConn(t, r, "/")

	require.NoError(t, r.EnablePing(c.ID(), time.Hour))
	require.NoError(t, r.EnablePing(c.ID(), 5*time.Millisecond))
	require.Eventually(t, func() bool { return ft.pings.Load() >= 2 }, time.Second, time.Millisecond)

	info, err := r.Describe(c.ID())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, info.PingInterval)
	require.NoError(t, r.DisablePing(c.ID()))
}

func TestPing_DisableWithoutScheduleSucceeds(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, _ := openConn(t, r, "/")

	assert.NoError(t, r.DisablePing(c.ID()))
	assert.ErrorIs(t, r.DisablePing("unknown"), ErrNotFound)
	assert.ErrorIs(t, r.EnablePing("unknown", 0), ErrNotFound)
	assert.Zero(t, r.PingTime("unknown"))
}

func TestPing_FailureKeepsLastValue(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, ft := openConn(t, r, "/")
	ft.pingDelay = time.Millisecond

	require.NoError(t, r.EnablePing(c.ID(), 0))
	require.Eventually(t, func() bool { return r.PingTime(c.ID()) > 0 }, time.Second, time.Millisecond)
	last := r.PingTime(c.ID())

	require.NoError(t, r.DisablePing(c.ID()))
	ft.pingErr = errors.New("pong lost")
	require.NoError(t, r.EnablePing(c.ID(), 0))
	require.Eventually(t, func() bool { return ft.pings.Load() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, r.DisablePing(c.ID()))

	assert.Equal(t, last, r.PingTime(c.ID()))
	assert.Len(t, r.ListClients(""), 1, "failed pings never close the connection")
}

func TestPing_SkippedWhileGhost(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, ft := openConn(t, r, "/")
	require.NoError(t, r.ActivateGhost(c.ID()))

	require.NoError(t, r.EnablePing(c.ID(), 2*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.DisablePing(c.ID()))

	assert.Zero(t, ft.pings.Load())
}

func TestPing_StoppedOnClose(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, ft := openConn(t, r, "/")

	require.NoError(t, r.EnablePing(c.ID(), 2*time.Millisecond))
	require.Eventually(t, func() bool { return ft.pings.Load() >= 1 }, time.Second, time.Millisecond)

	r.Disconnect(c.ID(), nil)
	after := ft.pings.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ft.pings.Load())
}

func TestPing_Timeout(t *testing.T) {
	r, _ := newTestRegistry(t, WithConfig(Config{PingTimeout: 5 * time.Millisecond}))
	c, ft := openConn(t, r, "/")
	ft.pingDelay = time.Second

	require.NoError(t, r.EnablePing(c.ID(), 0))
	start := time.Now()
	require.NoError(t, r.DisablePing(c.ID()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, r.PingTime(c.ID()))
}
