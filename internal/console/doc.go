// ABOUTME: Package doc for console
// ABOUTME: Terminal rendering of conversations, messages, and admin tables

// Package console renders session and admin state for the terminal.
// Rendering is pure: every function writes one view of the data it is
// given and holds no state, so views can be reprinted after every
// mutation.
//
// What is rendered is decided by the caller's permission gate; this
// package never checks capabilities itself.
package console
