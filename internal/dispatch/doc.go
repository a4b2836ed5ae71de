// Package dispatch executes canonical actions against the automation
// backend over its REST API. It is the only part of the system that knows
// what performing an action means; the scheduler hands it fully-rendered
// payloads and a deadline.
package dispatch
