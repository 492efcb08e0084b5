// Package gateway is the HTTP client for a network gateway node: the
// collaborator that serves a stream's commit set, indexes streams by model,
// and accepts anchor requests.
//
// The gateway's commit set carries no order; chain order is recovered
// locally by the stream loader. Payload bytes travel base64-encoded and are
// handed over verbatim.
package gateway
