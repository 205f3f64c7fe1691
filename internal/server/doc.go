// Package server hosts the two network surfaces: the websocket server that
// ingests audio and returns display text, and the HTTP API for monitoring.
package server
