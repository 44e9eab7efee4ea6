// Package api implements the HTTP REST API for WattMCP Core.
//
// This package provides:
//   - REST endpoints for device listing, live telemetry, and commands
//   - Synchronous command dispatch (block until the device answers) and an
//     async variant with result polling
//   - Static bearer API key authentication
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server is the synchronous face of the gateway. AI agents speak
// plain request/response HTTP; the correlation engine behind the server
// translates each command into an MQTT publish and parks the HTTP request
// until the device's asynchronous response is matched back by command ID.
//
// # Security
//
// Agents authenticate with static bearer API keys configured out of band.
// Health and metrics endpoints are unauthenticated for monitoring probes;
// everything that reads device data or moves hardware requires a key.
package api
