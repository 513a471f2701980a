// Package dedupe provides a small TTL map. The Matrix bridge uses it to drop
// events it has already handled and to remember recent command messages that
// a later reply may complete.
package dedupe
