// ABOUTME: Conversions between stored rule records and compiled autoreply rules
// ABOUTME: Keeps the response kind mapping in one place

package responder

import (
	"fmt"

	"github.com/2389/coven-responder/internal/autoreply"
	"github.com/2389/coven-responder/internal/store"
)

func fromStored(r *store.Rule) (*autoreply.Rule, error) {
	var resp autoreply.Response
	switch r.ResponseKind {
	case store.ResponseKindLiteral:
		resp = autoreply.Literal{Text: r.ResponseValue}
	case store.ResponseKindItem:
		resp = autoreply.ItemRef{ID: r.ResponseValue}
	default:
		return nil, fmt.Errorf("unknown response kind %q", r.ResponseKind)
	}
	return autoreply.NewRule(r.ChatID, r.Name, r.Pattern, resp)
}

func toStored(r *autoreply.Rule) *store.Rule {
	out := &store.Rule{
		ChatID:  r.ChatID(),
		Name:    r.Name(),
		Pattern: r.Pattern(),
	}
	switch resp := r.Response().(type) {
	case autoreply.Literal:
		out.ResponseKind = store.ResponseKindLiteral
		out.ResponseValue = resp.Text
	case autoreply.ItemRef:
		out.ResponseKind = store.ResponseKindItem
		out.ResponseValue = resp.ID
	default:
		panic(fmt.Sprintf("responder: unhandled response type %T", resp))
	}
	return out
}
