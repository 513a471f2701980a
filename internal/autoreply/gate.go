// ABOUTME: Probabilistic gate deciding which matched rules actually reply
// ABOUTME: Joins fired literals and stops at the first fired item response

package autoreply

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Gate draws against a fire probability. The zero value is not usable; use NewGate.
type Gate struct {
	draw func() float64
}

// NewGate returns a gate using draw as its source of uniform values in [0,1).
// A nil draw uses math/rand/v2.
func NewGate(draw func() float64) *Gate {
	if draw == nil {
		draw = rand.Float64
	}
	return &Gate{draw: draw}
}

// Fires reports whether one candidate fires at probability p.
// p <= 0 never fires and p >= 1 always fires without drawing;
// otherwise it fires iff draw < p.
func (g *Gate) Fires(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.draw() < p
}

// Outcome is what one message produces: joined literal text and at most one item.
type Outcome struct {
	Text string // fired literals joined by a single space; empty if none fired
	Item string // ID of the first fired item response; empty if none fired
}

// HasText reports whether any literal fired.
func (o Outcome) HasText() bool { return o.Text != "" }

// HasItem reports whether an item response fired.
func (o Outcome) HasItem() bool { return o.Item != "" }

// Evaluate runs matches in order through the gate. forceFire raises the
// probability to 1. Evaluation stops at the first item response that fires;
// rules after it are not drawn for.
func (g *Gate) Evaluate(matches []*Rule, p float64, forceFire bool) Outcome {
	if forceFire {
		p = 1
	}

	var texts []string
	var out Outcome

	for _, rule := range matches {
		if !g.Fires(p) {
			continue
		}

		switch resp := rule.Response().(type) {
		case Literal:
			texts = append(texts, resp.Text)
		case ItemRef:
			out.Item = resp.ID
			out.Text = strings.Join(texts, " ")
			return out
		default:
			panic(fmt.Sprintf("autoreply: unhandled response type %T", resp))
		}
	}

	out.Text = strings.Join(texts, " ")
	return out
}
