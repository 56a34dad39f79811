// Package crawler holds the types, capabilities, and error taxonomy shared by
// the profile crawl pipeline: the renderer and fetcher contracts, the per
// profile record emitted to sinks, and the configuration errors that abort a
// run before any task starts.
package crawler
