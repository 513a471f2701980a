// Package autoreply matches chat messages against user-defined rules and
// decides which of the matching rules reply.
//
// A Rule pairs a regular expression with a Response, either Literal text or
// an ItemRef the transport can repost. Patterns use Go's RE2 syntax and match
// anywhere in the message (search, not full match).
//
// Registry groups the rules of one chat by pattern source text so every
// distinct pattern is evaluated once per message, then expands each match
// back into all rules sharing that pattern. Registries are immutable; Set
// keeps the current one per chat and swaps in a rebuilt registry when a rule
// is added.
//
// Gate applies the chat's fire probability to the matches:
//
//	out := gate.Evaluate(set.Match(chatID, text), p, isReplyToBot)
//	if out.HasText() { send(out.Text) }
//	if out.HasItem() { sendItem(out.Item) }
package autoreply
