// Package ctlproto provides the wire-level helpers shared by ctrlmon (which
// speaks the control protocol live) and ctrlparse (which re-parses control
// protocol events already captured to a log file): reply-line framing with
// the "250-"/"250+"/"250 " continuation convention, quoted-argument
// splitting, and the timestamp-prefixed log line format ctrlmon writes and
// ctrlparse reads back.
package ctlproto
