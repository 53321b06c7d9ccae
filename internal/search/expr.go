package search

import "strings"

// Term is one token of a search expression. A leading "-" marks the term as
// an exclusion.
type Term struct {
	Text    string
	Negated bool
}

// Expression is a parsed search expression.
type Expression struct {
	Terms []Term
}

// Positives returns the non-negated term texts in order.
func (e Expression) Positives() []string {
	var out []string
	for _, term := range e.Terms {
		if !term.Negated {
			out = append(out, term.Text)
		}
	}
	return out
}

// Negatives returns the negated term texts in order.
func (e Expression) Negatives() []string {
	var out []string
	for _, term := range e.Terms {
		if term.Negated {
			out = append(out, term.Text)
		}
	}
	return out
}

// String reassembles the expression in canonical form.
func (e Expression) String() string {
	parts := make([]string, 0, len(e.Terms))
	for _, term := range e.Terms {
		if term.Negated {
			parts = append(parts, "-"+term.Text)
		} else {
			parts = append(parts, term.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ParseExpression splits an expression into whitespace-separated terms,
// stripping one leading "-" per exclusion term. A bare "-" is dropped.
func ParseExpression(expression string) Expression {
	var expr Expression
	for _, field := range strings.Fields(expression) {
		negated := false
		if strings.HasPrefix(field, "-") {
			negated = true
			field = strings.TrimPrefix(field, "-")
		}
		if field == "" {
			continue
		}
		expr.Terms = append(expr.Terms, Term{Text: field, Negated: negated})
	}
	return expr
}
