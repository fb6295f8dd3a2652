// Package model defines the core data structures used throughout gdorker.
//
// This package contains the following main types:
//   - ResultEntry: The URLs collected for a single query template
//   - RunReport: The structured record of every template's outcome for one run
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The dispatch loop, the report writers and the history database
// all need these types, so centralizing them prevents import cycles.
//
// The models serialize to the structured JSON result format and are stored
// in the history database.
package model
