// Package publisher uploads image payloads to the remote content API.
//
// Client posts one multipart request per item to <api root>/media with the
// image file, its canonical URL, prefixed tags, and visibility flag, and
// returns the identifier the API assigns. Requests carry a deterministic
// Idempotency-Key derived from the local identifier so a retried upload
// after a crash can be collapsed server side. Calls pass through a client
// side rate limiter and retry on timeouts, 408, 429, and 5xx responses with
// exponential backoff that honours Retry-After.
//
// Every failure returned by Publish is marked with services.ErrPublish.
package publisher
