// Package main provides the entry point for the gdorker CLI.
//
// gdorker dispatches a list of Google dork templates, one query at a time,
// with randomized pacing and proxy rotation, and collects the result URLs.
//
// Usage:
//
//	gdorker run -g dorks.txt
//	gdorker run -g dorks.txt -d example.com -s -o
//
// See --help for all available options.
package main

// main is the entry point for gdorker.
func main() {
	Execute()
}
