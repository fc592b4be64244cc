// Package logs reads the daemon log file for CLI display. It supports a
// bounded tail of the most recent lines and incremental reads from a saved
// offset so a follower can poll without rereading the whole file.
package logs
