// ABOUTME: Package doc for profile
// ABOUTME: Local persistence of the logged-in operator between runs

// Package profile persists the authenticated operator's identity, API
// token, and granted capability tokens in a local SQLite database, so a
// new process can restore its session without logging in again.
//
// The cache is a convenience, not an authority: capabilities stored here
// only pre-seed the permission gate until the next identity fetch
// refreshes them, and a 401 from the backend always wins over whatever
// the cache says.
package profile
