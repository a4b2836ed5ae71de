// Package manager implements the timer lifecycle engine: the public
// operation surface (create, pause, resume, cancel, extend, query and their
// group batch forms), the expiry loop that fires actions at the right
// wall-clock moment, startup reconciliation against per-timer restart
// behavior, and the derived group index.
//
// The live timer set is the single shared mutable resource; one mutex
// serializes read-decide-mutate-persist across callers and the expiry loop.
package manager
