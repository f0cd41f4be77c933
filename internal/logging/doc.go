// Package logging wires the supervisor's own operational log: a single
// logrus logger writing structured entries to a rotatable file and,
// optionally, to stderr. It is deliberately small compared to what a
// general-purpose logging facade offers; oniperf only ever needs one logger
// instance, configured once at startup from internal/settings.
package logging
