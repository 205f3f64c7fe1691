// Package stream ties one client's audio ring, stabilizer and formatter
// together into a Session with its own recognition cycle loop, and provides
// the Manager that owns all active sessions.
package stream
