// Package notify implements the server-push notification stream.
//
// A [Broker] fans events out to every connected subscriber. [Handler]
// serves one subscription as a text/event-stream response and writes a
// keep-alive comment while the stream is idle. Subscribers that cannot
// keep up lose events rather than stalling the publisher.
package notify
