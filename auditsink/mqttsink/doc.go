// Package mqttsink publishes authcore audit events to an MQTT broker.
//
// Each event is sent as one JSON message on "<prefix>/<event_type>", so
// subscribers can filter with topic wildcards such as "authcore/audit/login_+"
// or take everything with "authcore/audit/#". Messages are never retained.
//
// The sink runs on the audit dispatcher goroutine; a slow broker therefore
// fills the dispatcher buffer, and the engine's drop policy decides what
// happens next.
package mqttsink
