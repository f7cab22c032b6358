// Package stream pushes live orchestrator status to WebSocket clients.
//
// Hub sends a status message to every connected client on connect and then
// once per interval: the health report plus the most recent task outcomes.
// Clients whose send buffer fills up are disconnected.
package stream
