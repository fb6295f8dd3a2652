// Package dork loads query templates and turns them into the queries sent
// to a search backend.
//
// A template is one non-blank line of the input file. Normalize derives the
// scoped query for a template: the optional site: operator goes first and the
// result is cut to the backend's word limit. Templates themselves are never
// modified, because they are the keys of the run report.
package dork
