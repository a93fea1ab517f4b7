// Package server implements the hey-chat relay: a multi-room WebSocket
// chat server where clients join named rooms, exchange text messages, and
// observe presence and typing notifications.
//
// The Directory owns all room membership state behind a single mutex; a
// Session per connection validates requests and drives the directory; the
// Hub registers connections and delivers events best-effort. The
// implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
