// Package timer holds the domain model for dynamic timers: the Timer entity
// with its lifecycle transitions, the canonical Action descriptor with
// normalization of externally supplied specifications, and the error
// taxonomy shared by the manager and the transports.
package timer
