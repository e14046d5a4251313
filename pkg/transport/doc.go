// Package transport provides the HTTP middleware chain that wraps every
// chat server route, and the JSON error writer shared by all handlers.
//
// # Middleware
//
// Middleware is applied outermost first:
//
//	Trace -> Compress -> RequestID -> ServerTime -> Recovery -> routes
//
// Trace opens an OpenTelemetry server span and logs the start and end of
// each request. Compress negotiates br, gzip or deflate from
// Accept-Encoding. RequestID assigns a UUIDv7 to X-Request-Id unless the
// client supplied a usable one. ServerTime reports the handler latency in
// X-Server-Time. Recovery converts panics into 500 responses, so even a
// crashed handler is timed and tagged.
//
// Instrumentation failures (an id that cannot be minted, a latency header
// that does not encode) are logged and the request proceeds untouched.
// They never fail a user-facing request.
package transport
