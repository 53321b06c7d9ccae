package search

import (
	"reflect"
	"testing"
)

func TestParseExpression(t *testing.T) {
	expr := ParseExpression("ecology -politics  water")
	want := []Term{
		{Text: "ecology"},
		{Text: "politics", Negated: true},
		{Text: "water"},
	}
	if !reflect.DeepEqual(expr.Terms, want) {
		t.Fatalf("unexpected terms: %#v", expr.Terms)
	}
	if got := expr.String(); got != "ecology -politics water" {
		t.Fatalf("unexpected canonical form: %q", got)
	}
}

func TestParseExpressionDropsBareMinus(t *testing.T) {
	expr := ParseExpression("- apple")
	if len(expr.Terms) != 1 || expr.Terms[0].Text != "apple" {
		t.Fatalf("expected single positive term, got %#v", expr.Terms)
	}
}

func TestExpressionPartitionsTerms(t *testing.T) {
	expr := ParseExpression("a -b c -d")
	if !reflect.DeepEqual(expr.Positives(), []string{"a", "c"}) {
		t.Fatalf("positives: %v", expr.Positives())
	}
	if !reflect.DeepEqual(expr.Negatives(), []string{"b", "d"}) {
		t.Fatalf("negatives: %v", expr.Negatives())
	}
}
