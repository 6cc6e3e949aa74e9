package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/infrastructure/mqtt"
	"github.com/nerrad567/matter-ipmap/internal/report"
)

// Publisher sends MQTT messages. *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// RunMessage is the payload published on the run topic.
type RunMessage struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Sources    int       `json:"sources"`
	Targets    int       `json:"targets"`
	Matched    int       `json:"matched"`
	Unmatched  []string  `json:"unmatched"`
	WithIP     int       `json:"with_ip"`
	Threshold  float64   `json:"threshold"`
}

// MQTTSink publishes the mapping as retained messages: the whole mapping
// on ipmap/mapping, one record per device on ipmap/device/{slug} and the
// run summary on ipmap/run.
//
// Device topics published by the previous run that the current run no
// longer carries are cleared with an empty retained payload, so a renamed
// or unmatched device stops advertising its old address. Only topics this
// sink published since startup are tracked.
type MQTTSink struct {
	pub    Publisher
	qos    byte
	logger Logger

	mu      sync.Mutex
	devices map[string]struct{}
}

// NewMQTTSink creates a sink publishing with qos.
func NewMQTTSink(pub Publisher, qos byte) *MQTTSink {
	return &MQTTSink{
		pub:     pub,
		qos:     qos,
		logger:  noopLogger{},
		devices: make(map[string]struct{}),
	}
}

// SetLogger sets the logger used for slug collision warnings.
func (s *MQTTSink) SetLogger(logger Logger) {
	s.logger = logger
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// deviceMessage is one row bound for its device topic.
type deviceMessage struct {
	topic string
	row   report.Row
}

// Deliver publishes the mapping, each device, the clears for devices that
// disappeared and then the run summary. Publishing stops at the first
// failure; topics not yet cleared are retried on the next run.
func (s *MQTTSink) Deliver(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := mqtt.Topics{}

	mapping, err := run.Report.JSON()
	if err != nil {
		return err
	}
	if err := s.pub.Publish(topics.Mapping(), mapping, s.qos, true); err != nil {
		return fmt.Errorf("publishing mapping: %w", err)
	}

	messages := s.deviceMessages(run.Report.Records)
	current := make(map[string]struct{}, len(messages))

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(msg.row)
		if err != nil {
			return fmt.Errorf("encoding %q: %w", msg.row.Name, err)
		}
		if err := s.pub.Publish(msg.topic, payload, s.qos, true); err != nil {
			return fmt.Errorf("publishing %q: %w", msg.row.Name, err)
		}
		current[msg.topic] = struct{}{}
		s.devices[msg.topic] = struct{}{}
	}

	for _, topic := range slices.Sorted(maps.Keys(s.devices)) {
		if _, ok := current[topic]; ok {
			continue
		}
		if err := s.pub.Publish(topic, nil, s.qos, true); err != nil {
			return fmt.Errorf("clearing %s: %w", topic, err)
		}
		delete(s.devices, topic)
	}

	summary, err := json.Marshal(runMessage(run))
	if err != nil {
		return fmt.Errorf("encoding run summary: %w", err)
	}
	if err := s.pub.Publish(topics.Run(), summary, s.qos, true); err != nil {
		return fmt.Errorf("publishing run summary: %w", err)
	}
	return nil
}

// deviceMessages maps rows to device topics in record order. Names that
// reduce to the same slug share a topic; the later row wins, as in the
// JSON mapping, and the collision is logged.
func (s *MQTTSink) deviceMessages(rows []report.Row) []deviceMessage {
	topics := mqtt.Topics{}
	index := make(map[string]int, len(rows))
	messages := make([]deviceMessage, 0, len(rows))

	for _, row := range rows {
		topic := topics.Device(row.Name)
		if i, ok := index[topic]; ok {
			if messages[i].row.Name != row.Name {
				s.logger.Warn("device names share an MQTT topic",
					"topic", topic,
					"kept", row.Name,
					"replaced", messages[i].row.Name,
				)
			}
			messages[i].row = row
			continue
		}
		index[topic] = len(messages)
		messages = append(messages, deviceMessage{topic: topic, row: row})
	}
	return messages
}

func runMessage(run Run) RunMessage {
	unmatched := run.Report.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}
	return RunMessage{
		RunID:      run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Sources:    len(run.Result.Sources),
		Targets:    len(run.Result.Targets),
		Matched:    len(run.Report.Records),
		Unmatched:  unmatched,
		WithIP:     report.WithIP(run.Report.Records),
		Threshold:  run.Threshold,
	}
}
