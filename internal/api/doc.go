// Package api implements the HTTP boundary: request decoding, validation,
// auth, and the mapping from internal errors to response envelopes. All
// business behavior lives below it in service and engine.
package api
