// Package watch provides the building blocks shared by the status, message
// and HAL watchers: a non-reentrant polling scheduler, a dot-path resolver
// over generic value trees, structural equality and cloning for comparison
// baselines, and a path-keyed listener registry with single-fire support.
//
// The registry and resolver are not synchronized; each watcher owns one
// registry and serializes access to it (its own mutex plus the scheduler's
// busy flag). The scheduler is safe for concurrent use.
package watch
