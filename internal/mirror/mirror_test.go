package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"espresso_rig/internal/config"
	"espresso_rig/internal/logger"
	"espresso_rig/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
	closed   bool
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type stateBox struct {
	mu sync.Mutex
	st models.CombinedState
}

func (b *stateBox) Latest() models.CombinedState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func (b *stateBox) set(st models.CombinedState) {
	b.mu.Lock()
	b.st = st
	b.mu.Unlock()
}

func TestMirror_PublishLatestOnlyNewStates(t *testing.T) {
	pub := &fakePublisher{}
	box := &stateBox{}
	m := New(pub, box, "lm/dashboard/state", time.Second, logger.Nop())

	sent, err := m.PublishLatest()
	require.NoError(t, err)
	assert.False(t, sent, "nothing published before the first cycle")

	box.set(models.CombinedState{
		Timestamp: time.Unix(100, 0),
		Device:    models.DeviceStatus{Mode: "AUTO"},
		Shot:      models.TelemetrySnapshot{WeightG: 20.5, BrewState: models.BrewStateBrewing},
	})
	sent, err = m.PublishLatest()
	require.NoError(t, err)
	assert.True(t, sent)

	sent, _ = m.PublishLatest()
	assert.False(t, sent, "same state twice")

	require.Equal(t, 1, pub.count())
	assert.Equal(t, "lm/dashboard/state", pub.topics[0])

	var decoded models.CombinedState
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, 20.5, decoded.Shot.WeightG)
	assert.Equal(t, "AUTO", decoded.Device.Mode)
}

func TestMirror_FailedPublishIsRetried(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	box := &stateBox{st: models.CombinedState{Timestamp: time.Unix(100, 0)}}
	m := New(pub, box, "t", time.Second, logger.Nop())

	_, err := m.PublishLatest()
	require.Error(t, err)

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	sent, err := m.PublishLatest()
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestMirror_RunPublishesAndClosesOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	box := &stateBox{st: models.CombinedState{Timestamp: time.Unix(1, 0)}}
	m := New(pub, box, "t", 5*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, time.Millisecond)
	box.set(models.CombinedState{Timestamp: time.Unix(2, 0)})
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.True(t, pub.closed)
}

func TestConnect_UnreachableBroker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, config.MQTTConfig{Host: "127.0.0.1", Port: 1, ClientID: "test"}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp://127.0.0.1:1")
}
