// Package runner drives mapping runs.
//
// A run fetches a snapshot from a SnapshotSource (Home Assistant or a file),
// maps it, renders the report and hands the result to a delivery
// Dispatcher. The CLI performs a single Execute; serve mode calls RunEvery
// and lets the HTTP API and MQTT refresh command trigger extra runs.
package runner
