// Package http implements the HTTP transport for the timer service.
//
// It decodes JSON service calls into manager operations and maps domain
// errors to status codes.
package http
