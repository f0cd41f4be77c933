// Package watchdog spawns and supervises one long-lived child process,
// tailing its combined stdout/stderr into a linesink.Sink, signalling
// readiness once an optional pattern is matched, and relaunching on
// unexpected death with a fixed backoff until a configurable circuit
// breaker trips.
//
// Grounded on onionperf's watchdog_thread_task (spawn/readiness-scan/relaunch
// loop, the 30-second backoff, the >10-deaths-per-hour breaker) and adapted
// to the runner/startStop + runner/ticker idiom via internal/runlife.Runner.
package watchdog
