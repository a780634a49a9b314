// Package backend pushes metrics batches to the supervisory backend over
// HTTP.
//
// Session holds the bearer token. Login posts the station credentials to
// /session and retries at a constant interval until it succeeds or the
// context ends. Reauthenticate (logout, then login) is shared between
// concurrent callers.
//
// Publisher.Ship is non-blocking: batches go into a bounded channel and the
// oldest batch is evicted when it is full, so the newest telemetry wins.
// Publisher.Run logs in and then drains the channel, pushing each batch
// once. A 401 triggers exactly one reauthentication; the rejected batch is
// not resent.
package backend
