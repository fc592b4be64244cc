// Package daemon wires persistence, the workflow engine, the job runner, and
// the overdue sweep into a single-instance background process, and exposes
// the HTTP API the CLI and integrations talk to.
package daemon
