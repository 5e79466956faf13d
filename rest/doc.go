// Package rest is the HTTP collaborator of the admin console.
//
// GET requests consult the response cache before touching the network and
// populate it after a 2xx answer. Batches of requests and file uploads run
// through the bounded executor so at most K are in flight.
package rest
