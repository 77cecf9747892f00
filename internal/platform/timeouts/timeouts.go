// Package timeouts defines shared timeout constants used across zenite
// services and clients.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// StoreCall caps a single storage round trip issued by an HTTP handler.
const StoreCall = 3 * time.Second

// RealtimeSubscribe caps the wait for a realtime.subscribed acknowledgement
// before the client reports TIMED_OUT.
const RealtimeSubscribe = 10 * time.Second

// APIRequest caps a single REST call issued by the client core.
const APIRequest = 10 * time.Second
