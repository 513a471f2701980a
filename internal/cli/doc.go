// Package cli implements the coven-responder command line: the long-running
// serve command plus one-shot commands for editing rules and chat settings
// directly in the database.
package cli
