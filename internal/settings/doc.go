// Package settings loads and validates the fixed configuration schema this
// runtime needs: data/publish directories, daemon binary paths, control
// port/auth, the circuit breaker policy, and rotation/analysis timing. It
// trades a generic multi-component config framework (built for a library
// with many independent consumers) for a single flat struct, bound from CLI
// flags, environment variables (ONIONPERF_ prefix), and an optional config
// file, in that order of precedence via viper.
package settings
