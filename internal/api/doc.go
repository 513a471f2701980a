// Package api exposes the responder over HTTP for bridges and operators that
// do not embed it directly. All routes under /api/chats/{chat} require a
// bearer JWT when a secret is configured; tokens may be scoped to chats.
package api
