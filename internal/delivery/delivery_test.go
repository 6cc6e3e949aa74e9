package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/matter-ipmap/internal/history"
	"github.com/nerrad567/matter-ipmap/internal/homeassistant"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/database"
	"github.com/nerrad567/matter-ipmap/internal/inventory"
	"github.com/nerrad567/matter-ipmap/internal/mapper"
	"github.com/nerrad567/matter-ipmap/internal/report"
	"github.com/nerrad567/matter-ipmap/migrations"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func matterDevice(id, name string) inventory.DeviceRecord {
	return inventory.DeviceRecord{
		ID:          id,
		Name:        name,
		Identifiers: []inventory.Pair{{Type: "matter", Value: id}},
	}
}

func levitonDevice(id, name, ip string) inventory.DeviceRecord {
	return inventory.DeviceRecord{
		ID:               id,
		Name:             name,
		Manufacturer:     "Leviton",
		Model:            "D26HD",
		ConfigurationURL: "http://" + ip + "/",
		Connections:      []inventory.Pair{{Type: "mac", Value: "aa:bb:cc:dd:ee:" + id}},
	}
}

// testRun maps two Matter devices against one Leviton bridge: the kitchen
// dimmer matches and the garage sensor stays unmatched.
func testRun(t *testing.T) Run {
	t.Helper()

	snap := inventory.Snapshot{
		Devices: []inventory.DeviceRecord{
			matterDevice("m1", "Kitchen Dimmer"),
			matterDevice("m2", "Garage Sensor"),
			levitonDevice("01", "Kitchen Dimmer", "10.0.0.5"),
		},
		FetchedAt: testStart,
	}

	m := mapper.New(mapper.Options{})
	result := m.Run(snap)
	finished := testStart.Add(1500 * time.Millisecond)

	if result.Mapping.Len() != 1 {
		t.Fatalf("fixture mapping has %d matches, want 1", result.Mapping.Len())
	}

	return Run{
		ID:         "run-test",
		StartedAt:  testStart,
		FinishedAt: finished,
		Threshold:  m.Threshold(),
		Result:     result,
		Report:     report.Format(result.Mapping, finished),
	}
}

// =============================================================================
// Dispatcher
// =============================================================================

type recordingSink struct {
	name  string
	err   error
	calls *[]string
}

func (s recordingSink) Name() string { return s.name }

func (s recordingSink) Deliver(context.Context, Run) error {
	*s.calls = append(*s.calls, s.name)
	return s.err
}

func TestDispatcherRunsAllSinks(t *testing.T) {
	var calls []string
	errBroker := errors.New("broker down")

	d := NewDispatcher(
		recordingSink{name: "file", calls: &calls},
		recordingSink{name: "mqtt", err: errBroker, calls: &calls},
	)
	d.Add(recordingSink{name: "history", calls: &calls})

	err := d.Deliver(context.Background(), testRun(t))

	if strings.Join(calls, ",") != "file,mqtt,history" {
		t.Errorf("sink order = %v", calls)
	}
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Errorf("error = %v, want ErrDeliveryFailed", err)
	}
	if !errors.Is(err, errBroker) {
		t.Errorf("error = %v, want to wrap the sink error", err)
	}
	if !strings.Contains(err.Error(), "mqtt: broker down") {
		t.Errorf("error %q should name the failing sink", err)
	}
	if got := strings.Join(d.Names(), ","); got != "file,mqtt,history" {
		t.Errorf("Names() = %s", got)
	}
}

func TestDispatcherNoFailures(t *testing.T) {
	var calls []string
	d := NewDispatcher(recordingSink{name: "file", calls: &calls})
	if err := d.Deliver(context.Background(), testRun(t)); err != nil {
		t.Errorf("Deliver() error = %v", err)
	}
}

func TestDispatcherEmpty(t *testing.T) {
	if err := NewDispatcher().Deliver(context.Background(), Run{}); err != nil {
		t.Errorf("Deliver() with no sinks error = %v", err)
	}
}

// =============================================================================
// FileSink
// =============================================================================

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	run := testRun(t)

	sink := NewFileSink(dir)
	if err := sink.Deliver(context.Background(), run); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	csv, err := os.ReadFile(filepath.Join(dir, CSVFile))
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	if string(csv) != run.Report.CSV {
		t.Errorf("CSV file = %q, want %q", csv, run.Report.CSV)
	}

	text, err := os.ReadFile(filepath.Join(dir, TextFile))
	if err != nil {
		t.Fatalf("reading text: %v", err)
	}
	if !strings.Contains(string(text), "Kitchen Dimmer") {
		t.Error("text report missing matched device")
	}

	raw, err := os.ReadFile(filepath.Join(dir, JSONFile))
	if err != nil {
		t.Fatalf("reading JSON: %v", err)
	}
	var byName map[string]map[string]any
	if err := json.Unmarshal(raw, &byName); err != nil {
		t.Fatalf("JSON file invalid: %v", err)
	}
	if byName["Kitchen Dimmer"]["ip"] != "10.0.0.5" {
		t.Errorf("JSON entry = %v", byName["Kitchen Dimmer"])
	}

	md, err := os.ReadFile(filepath.Join(dir, MarkdownFile))
	if err != nil {
		t.Fatalf("reading markdown: %v", err)
	}
	if !strings.HasPrefix(string(md), "# Matter/Leviton Switches Network Info") {
		t.Errorf("markdown = %q", md)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("output dir has %d entries, want 4", len(entries))
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, CSVFile))
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm&0o007 != 0 {
			t.Errorf("CSV permissions = %v, want no world access", perm)
		}
	}
}

func TestFileSinkOverwrites(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CSVFile), []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}

	run := testRun(t)
	if err := NewFileSink(dir).Deliver(context.Background(), run); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	csv, err := os.ReadFile(filepath.Join(dir, CSVFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(csv) != run.Report.CSV {
		t.Errorf("stale CSV not replaced: %q", csv)
	}
}

func TestFileSinkUnwritableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	err := NewFileSink(filepath.Join(blocker, "out")).Deliver(context.Background(), testRun(t))
	if err == nil {
		t.Error("Deliver() into a path below a regular file should fail")
	}
}

// =============================================================================
// NotificationSink
// =============================================================================

type fakeNotifier struct {
	got []homeassistant.Notification
	err error
}

func (f *fakeNotifier) CreateNotification(_ context.Context, n homeassistant.Notification) error {
	f.got = append(f.got, n)
	return f.err
}

func TestNotificationSink(t *testing.T) {
	notifier := &fakeNotifier{}
	sink := NewNotificationSink(notifier, "matter_ip_mapping")

	if err := sink.Deliver(context.Background(), testRun(t)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if err := sink.NotifyFailure(context.Background(), inventory.ErrInventoryUnavailable); err != nil {
		t.Fatalf("NotifyFailure() error = %v", err)
	}

	if len(notifier.got) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifier.got))
	}

	ok, failed := notifier.got[0], notifier.got[1]
	if ok.Title != report.TitleComplete || ok.NotificationID != "matter_ip_mapping" {
		t.Errorf("success notification = %+v", ok)
	}
	if !strings.Contains(ok.Message, "Mapped 1 of 2 Matter devices (1 with IP addresses)") {
		t.Errorf("success message = %q", ok.Message)
	}
	if failed.Title != report.TitleFailed || failed.NotificationID != "matter_ip_mapping" {
		t.Errorf("failure notification = %+v", failed)
	}
	if !strings.Contains(failed.Message, inventory.ErrInventoryUnavailable.Error()) {
		t.Errorf("failure message = %q", failed.Message)
	}
}

func TestNotificationSinkError(t *testing.T) {
	errHA := errors.New("connection refused")
	sink := NewNotificationSink(&fakeNotifier{err: errHA}, "id")

	if err := sink.Deliver(context.Background(), testRun(t)); !errors.Is(err, errHA) {
		t.Errorf("Deliver() error = %v, want %v", err, errHA)
	}
}

// =============================================================================
// MQTTSink
// =============================================================================

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu     sync.Mutex
	msgs   []published
	failOn string
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if topic == f.failOn {
		return errors.New("not connected")
	}
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	return nil
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	run := testRun(t)

	if err := NewMQTTSink(pub, 1).Deliver(context.Background(), run); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	wantTopics := []string{"ipmap/mapping", "ipmap/device/kitchen-dimmer", "ipmap/run"}
	if len(pub.msgs) != len(wantTopics) {
		t.Fatalf("published %d messages, want %d", len(pub.msgs), len(wantTopics))
	}
	for i, want := range wantTopics {
		msg := pub.msgs[i]
		if msg.topic != want {
			t.Errorf("message %d topic = %q, want %q", i, msg.topic, want)
		}
		if !msg.retained || msg.qos != 1 {
			t.Errorf("message %d retained=%v qos=%d", i, msg.retained, msg.qos)
		}
	}

	var device report.Row
	if err := json.Unmarshal(pub.msgs[1].payload, &device); err != nil {
		t.Fatalf("device payload: %v", err)
	}
	if device.IP != "10.0.0.5" || device.Score != 1 {
		t.Errorf("device payload = %+v", device)
	}

	var summary RunMessage
	if err := json.Unmarshal(pub.msgs[2].payload, &summary); err != nil {
		t.Fatalf("run payload: %v", err)
	}
	if summary.RunID != "run-test" || summary.Matched != 1 || summary.Sources != 2 || summary.Targets != 1 {
		t.Errorf("run payload = %+v", summary)
	}
	if len(summary.Unmatched) != 1 || summary.Unmatched[0] != "Garage Sensor" {
		t.Errorf("unmatched = %v", summary.Unmatched)
	}
}

func TestMQTTSinkStopsOnFailure(t *testing.T) {
	pub := &fakePublisher{failOn: "ipmap/mapping"}

	err := NewMQTTSink(pub, 0).Deliver(context.Background(), testRun(t))
	if err == nil || !strings.Contains(err.Error(), "publishing mapping") {
		t.Errorf("Deliver() error = %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("published %d messages after failure", len(pub.msgs))
	}
}

type warnLogger struct {
	warnings []string
}

func (l *warnLogger) Debug(string, ...any) {}

func (l *warnLogger) Warn(msg string, _ ...any) {
	l.warnings = append(l.warnings, msg)
}

func rowsRun(id string, names ...string) Run {
	rows := make([]report.Row, 0, len(names))
	for _, name := range names {
		rows = append(rows, report.Row{Name: name, IP: "10.0.0.5", MAC: inventory.NotFound})
	}
	return Run{ID: id, Report: report.Report{Records: rows}}
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.topic)
	}
	return out
}

func (f *fakePublisher) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

func TestMQTTSinkClearsVanishedDevices(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, 1)
	ctx := context.Background()

	if err := sink.Deliver(ctx, rowsRun("run-1", "Hall Light", "Porch")); err != nil {
		t.Fatalf("first Deliver() error = %v", err)
	}
	pub.reset()

	if err := sink.Deliver(ctx, rowsRun("run-2", "Porch")); err != nil {
		t.Fatalf("second Deliver() error = %v", err)
	}

	want := []string{"ipmap/mapping", "ipmap/device/porch", "ipmap/device/hall-light", "ipmap/run"}
	if got := pub.topics(); !reflect.DeepEqual(got, want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
	cleared := pub.msgs[2]
	if len(cleared.payload) != 0 || !cleared.retained {
		t.Errorf("clear message payload=%q retained=%v, want empty retained", cleared.payload, cleared.retained)
	}

	// Once cleared, the topic is not cleared again.
	pub.reset()
	if err := sink.Deliver(ctx, rowsRun("run-3")); err != nil {
		t.Fatalf("third Deliver() error = %v", err)
	}
	want = []string{"ipmap/mapping", "ipmap/device/porch", "ipmap/run"}
	if got := pub.topics(); !reflect.DeepEqual(got, want) {
		t.Errorf("topics = %v, want %v", got, want)
	}
}

func TestMQTTSinkRetriesFailedClear(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, 0)
	ctx := context.Background()

	if err := sink.Deliver(ctx, rowsRun("run-1", "Hall Light")); err != nil {
		t.Fatalf("first Deliver() error = %v", err)
	}

	pub.failOn = "ipmap/device/hall-light"
	if err := sink.Deliver(ctx, rowsRun("run-2")); err == nil {
		t.Fatal("Deliver() should report the failed clear")
	}

	pub.failOn = ""
	pub.reset()
	if err := sink.Deliver(ctx, rowsRun("run-3")); err != nil {
		t.Fatalf("third Deliver() error = %v", err)
	}
	want := []string{"ipmap/mapping", "ipmap/device/hall-light", "ipmap/run"}
	if got := pub.topics(); !reflect.DeepEqual(got, want) {
		t.Errorf("topics = %v, want %v", got, want)
	}
}

func TestMQTTSinkSlugCollision(t *testing.T) {
	pub := &fakePublisher{}
	log := &warnLogger{}
	sink := NewMQTTSink(pub, 0)
	sink.SetLogger(log)

	if err := sink.Deliver(context.Background(), rowsRun("run-1", "Hall Light", "hall-light")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	want := []string{"ipmap/mapping", "ipmap/device/hall-light", "ipmap/run"}
	if got := pub.topics(); !reflect.DeepEqual(got, want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
	var device report.Row
	if err := json.Unmarshal(pub.msgs[1].payload, &device); err != nil {
		t.Fatalf("device payload: %v", err)
	}
	if device.Name != "hall-light" {
		t.Errorf("device topic carries %q, want the later row", device.Name)
	}
	if len(log.warnings) != 1 {
		t.Errorf("warnings = %v, want one collision warning", log.warnings)
	}
}

// =============================================================================
// InfluxSink
// =============================================================================

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoints(_ context.Context, points ...*write.Point) error {
	f.points = append(f.points, points...)
	return f.err
}

func TestInfluxSink(t *testing.T) {
	w := &fakeWriter{}
	run := testRun(t)

	if err := NewInfluxSink(w).Deliver(context.Background(), run); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(w.points) != 2 {
		t.Fatalf("wrote %d points, want 2", len(w.points))
	}

	match, summary := w.points[0], w.points[1]
	if match.Name() != "device_match" || summary.Name() != "mapping_run" {
		t.Errorf("measurements = %s, %s", match.Name(), summary.Name())
	}
	if !match.Time().Equal(run.FinishedAt) {
		t.Errorf("point time = %v, want %v", match.Time(), run.FinishedAt)
	}

	tags := map[string]string{}
	for _, tag := range match.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["source"] != "Kitchen Dimmer" || tags["target"] != "Kitchen Dimmer" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]any{}
	for _, f := range summary.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["matched"] != int64(1) || fields["unmatched"] != int64(1) || fields["duration_ms"] != int64(1500) {
		t.Errorf("summary fields = %v", fields)
	}
}

// =============================================================================
// HistorySink
// =============================================================================

func TestHistorySink(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := history.NewSQLiteRepository(db.DB)

	run := testRun(t)
	if err := NewHistorySink(repo).Deliver(ctx, run); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	got, err := repo.Get(ctx, "run-test")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SourceCount != 2 || got.TargetCount != 1 || got.MatchedCount != 1 || got.UnmatchedCount != 1 {
		t.Errorf("stored run = %+v", got)
	}
	if len(got.Matches) != 1 || got.Matches[0].IP != "10.0.0.5" || got.Matches[0].Manufacturer != "Leviton" {
		t.Errorf("stored matches = %+v", got.Matches)
	}
	if len(got.Unmatched) != 1 || got.Unmatched[0] != "Garage Sensor" {
		t.Errorf("stored unmatched = %v", got.Unmatched)
	}

	// A second delivery of the same run is rejected.
	if err := NewHistorySink(repo).Deliver(ctx, run); !errors.Is(err, history.ErrRunExists) {
		t.Errorf("duplicate Deliver() error = %v, want ErrRunExists", err)
	}
}
