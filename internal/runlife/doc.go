// Package runlife provides the two small lifecycle primitives every
// long-running component in oniperf is built on: a start/stop runner for
// goroutines that block until cancelled, and a ticker runner for goroutines
// that run on a fixed interval. Both accumulate their own errors instead of
// returning them synchronously, since the function they wrap runs detached
// in a goroutine.
package runlife
