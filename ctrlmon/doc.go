// Package ctrlmon opens and maintains an authenticated session to the
// routing daemon's control protocol: NULL or SAFECOOKIE authentication
// (method and cookie path taken from configuration; no PROTOCOLINFO query
// is made), asynchronous event subscription (skipping,
// with a warning, any event the connected daemon does not recognize), and
// a tick-counted periodic NEWNYM/DROPGUARDS signal loop.
//
// Grounded on onionperf's TorMonitor (session banner, per-event try/catch
// subscription, tick-indexed periodic actions) and on a socket client's
// dial/read-line/write-command contract, adapted directly onto net.Conn
// since no reusable type for that contract ships in this repository's
// dependency surface.
package ctrlmon
