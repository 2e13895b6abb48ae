// Package client provides the `funnel` command-line client.
//
// The CLI talks to the Funnel HTTP API to submit events and check server
// health from a terminal, and can read a stopped server's lost-event
// journal directly from disk. It is primarily intended for developers
// and operators.
//
// Installation
//
//	go install github.com/rzbill/funnel/cmd/funnel@latest
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it is
// read from FUNNEL_HTTP (default http://127.0.0.1:8080).
//
// Usage
//
//	funnel send '{"hello":"world"}' --header tenant=acme
//	funnel send --file event.json
//	cat events.ndjson | funnel send --bulk
//
//	funnel health
//
//	# Inspect events the server reported lost at shutdown (server stopped)
//	funnel lost --data-dir /var/lib/funnel
//
// Notes
//
//   - send accepts the payload as an argument, from --file, or from
//     stdin; --bulk reads line-delimited payloads and posts them in one
//     request.
//   - lost opens the Pebble journal directly and must not run against a
//     live server's data directory.
package client
