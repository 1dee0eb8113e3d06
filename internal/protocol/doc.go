// Package protocol defines the typed events exchanged between clients and the
// relay server, along with the JSON codec that converts them to and from wire
// bytes. Malformed input is reported as an error to the caller and never
// terminates a connection.
package protocol
