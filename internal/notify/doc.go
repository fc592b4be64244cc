// Package notify pushes operator alerts to an ntfy topic. When no topic is
// configured the service degrades to a noop so callers never branch on
// notification availability.
package notify
