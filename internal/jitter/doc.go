// Package jitter paces the dispatch loop with randomized waits.
//
// A Scheduler pre-samples a small pool of delays from [min, max) once, and
// every wait draws one of them at random. Waiting a slightly different time
// between queries keeps the request pattern from looking automated.
package jitter
