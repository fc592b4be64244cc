// Package api is the service layer shared by the daemon's HTTP endpoints and
// the CLI. It wraps the store and the workflow engine behind operations that
// return transport-friendly DTOs, so both surfaces render the same shapes.
package api
