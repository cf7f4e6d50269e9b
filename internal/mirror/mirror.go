package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"espresso_rig/internal/logger"
	"espresso_rig/internal/models"
)

// Publisher is the broker side of the mirror.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close()
}

// StateReader is satisfied by service.Coordinator.
type StateReader interface {
	Latest() models.CombinedState
}

// Mirror publishes every new state it observes; unchanged states are skipped.
type Mirror struct {
	pub      Publisher
	reader   StateReader
	topic    string
	interval time.Duration
	log      *logger.Logger

	last time.Time
}

func New(pub Publisher, reader StateReader, topic string, interval time.Duration, log *logger.Logger) *Mirror {
	if interval <= 0 {
		interval = time.Second
	}
	return &Mirror{pub: pub, reader: reader, topic: topic, interval: interval, log: logger.OrNop(log)}
}

// Run publishes until ctx is canceled, then closes the publisher.
func (m *Mirror) Run(ctx context.Context) {
	defer m.pub.Close()

	t := time.NewTicker(m.interval)
	defer t.Stop()
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, err := m.PublishLatest()
			switch {
			case err != nil && !failing:
				m.log.Warnw("mqtt_publish_failed", "topic", m.topic, "error", err)
			case err == nil && failing:
				m.log.Infow("mqtt_publish_recovered", "topic", m.topic)
			}
			failing = err != nil
		}
	}
}

// PublishLatest sends the latest state if it is newer than the last one sent.
func (m *Mirror) PublishLatest() (bool, error) {
	st := m.reader.Latest()
	if st.Timestamp.IsZero() || st.Timestamp.Equal(m.last) {
		return false, nil
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return false, fmt.Errorf("encode state: %w", err)
	}
	if err := m.pub.Publish(m.topic, payload); err != nil {
		return false, err
	}
	m.last = st.Timestamp
	return true, nil
}
