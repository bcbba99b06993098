package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBareword(t *testing.T) {
	e, err := Parse("hello")
	require.NoError(t, err)
	require.Equal(t, NodeTerm, e.Kind)
	require.Equal(t, "hello", e.Text)
}

func TestParseImplicitAnd(t *testing.T) {
	e, err := Parse("hello world")
	require.NoError(t, err)
	require.Equal(t, NodeAnd, e.Kind)
	require.Equal(t, "(hello AND world)", Canonical(e))
}

func TestParseExplicitOr(t *testing.T) {
	e, err := Parse("hello OR world")
	require.NoError(t, err)
	require.Equal(t, "(hello OR world)", Canonical(e))
}

func TestParseNotBindsTighterThanAnd(t *testing.T) {
	e, err := Parse("hello NOT world")
	require.NoError(t, err)
	require.Equal(t, "(hello AND NOT world)", Canonical(e))
}

func TestParseOrHasLowerPrecedenceThanAnd(t *testing.T) {
	e, err := Parse("a b OR c")
	require.NoError(t, err)
	require.Equal(t, "((a AND b) OR c)", Canonical(e))
}

func TestParseParentheses(t *testing.T) {
	e, err := Parse("a (b OR c)")
	require.NoError(t, err)
	require.Equal(t, "(a AND (b OR c))", Canonical(e))
}

func TestParseQuotedPhraseWithEscape(t *testing.T) {
	e, err := Parse(`"a \"b\" c"`)
	require.NoError(t, err)
	require.Equal(t, NodeTerm, e.Kind)
	require.Equal(t, `a "b" c`, e.Text)
}

func TestParseUnterminatedQuoteErrors(t *testing.T) {
	_, err := Parse(`"unterminated`)
	require.Error(t, err)
}

func TestParseDanglingOperatorErrors(t *testing.T) {
	_, err := Parse("hello AND")
	require.Error(t, err)
}

func TestParseUnmatchedParenErrors(t *testing.T) {
	_, err := Parse("(hello")
	require.Error(t, err)
}

func TestTermsOrderAndNegation(t *testing.T) {
	e, err := Parse("alpha beta NOT gamma")
	require.NoError(t, err)
	positive, negated := Terms(e)
	require.Equal(t, []string{"alpha", "beta"}, positive)
	require.Equal(t, []string{"gamma"}, negated)
}

func TestCanonicalFlattensRunsOfSameOperator(t *testing.T) {
	e, err := Parse("a b c")
	require.NoError(t, err)
	require.Equal(t, "(a AND b AND c)", Canonical(e))
}
