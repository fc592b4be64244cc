// Package templates loads the task template catalog that stage-entry jobs
// consult when a deal enters a stage. A default catalog ships embedded in the
// binary; operators can point workflow at a replacement TOML file via
// configuration.
package templates
