// Package health provides health, readiness and liveness endpoints.
//
// A Checker holds named dependency checks. /health reports process status
// and uptime, /ready runs every check and answers 503 when one fails, and
// /live is a constant ping. APIHandler serves the JSON liveness document
// mounted on the application router at GET /api.
package health
