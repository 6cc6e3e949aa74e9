// Package history stores completed mapping runs in SQLite.
//
// Each run keeps its counts, the acceptance threshold in force and every
// matched device, so a mapping can be served or compared after the process
// that produced it has exited. The schema lives in the top-level migrations
// package.
package history
