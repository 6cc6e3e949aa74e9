// Package delivery publishes the result of a mapping run.
//
// A Dispatcher fans a Run out to the configured sinks:
//
//   - FileSink writes the text, CSV, JSON and Markdown artifacts
//   - NotificationSink posts a Home Assistant persistent notification
//   - MQTTSink publishes retained mapping and per-device messages
//   - InfluxSink records match scores and a run summary
//   - HistorySink stores the run in the SQLite history
//
// Sinks are independent: one failing does not prevent the rest from
// running, and all failures are returned together.
package delivery
