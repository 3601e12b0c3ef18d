// Package dedupe provides a time-bounded cache of recently seen keys.
// The session core uses it to make live-event insertion idempotent by
// message id and to guard sends against duplicate submission on retry.
package dedupe
