// Package render substitutes template markup in action payloads.
//
// Rendering happens at dispatch time so templates referencing the current
// moment observe values from when the timer fired, not when it was created.
package render
