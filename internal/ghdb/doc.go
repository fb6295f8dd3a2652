// Package ghdb collects dorks from the Google Hacking Database on exploit-db.com.
//
// Every GHDB entry has a numbered detail page. The Collector fetches a range
// of those pages with a small bounded pool of workers sharing one rate
// limiter, extracts the dork from each page and returns the dorks ordered by
// number, ready to be written as a template file.
//
// Design decision: We use errgroup.SetLimit as the bounded pool and Wait as
// the completion barrier. A page that fails is recorded and skipped; only
// cancellation stops the pool.
package ghdb
