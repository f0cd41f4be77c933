// Package linesink provides the thread-safe append writer every child
// process's captured stdout is tailed into: a plain file in append mode (or
// stdout, for the "-" path), with an atomic Rotate that moves the current
// content into a gzip-compressed archive file and truncates the live file
// in place.
//
// Grounded on the ioutils/aggregator lifecycle shape (open once, write
// under a lock, close releases the handle) and archive/compress for the
// rotate-time gzip encoding.
package linesink
