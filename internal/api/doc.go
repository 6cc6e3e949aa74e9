// Package api implements the HTTP API served by `ipmap serve`.
//
// Routes (all under /api/v1):
//
//	GET  /health            component and last-run status (never authenticated)
//	GET  /metrics           runtime and last-run statistics
//	GET  /mapping           latest mapping as JSON
//	GET  /mapping.csv       latest CSV block
//	GET  /mapping.txt       latest text report
//	GET  /mapping.md        latest network info table
//	POST /mapping/refresh   run now and return the new mapping
//	GET  /runs              stored run summaries
//	GET  /runs/latest       most recent stored run with matches
//	GET  /runs/{id}         one stored run with matches
//
// # Security
//
// When security.jwt.secret is set every route except /health requires an
// HS256 bearer token with an expiry, issued by security.jwt.issuer when
// that is configured. An empty secret leaves the API open, which suits a
// loopback-only listener.
//
// Inventory failures on refresh return 502 and keep the previous mapping.
package api
