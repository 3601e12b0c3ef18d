// Package perm implements the capability-set permission gate consulted
// before any privileged operator action. Checks are pure set membership;
// the gate never performs I/O.
package perm
