package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWebPlusAndBarewordAreEquivalent(t *testing.T) {
	_, canon1, err := ParseWeb("+hello world")
	require.NoError(t, err)
	_, canon2, err := ParseWeb("hello world")
	require.NoError(t, err)
	require.Equal(t, canon1, canon2)
	require.Equal(t, "(hello AND world)", canon1)
}

func TestParseWebMinusExcludes(t *testing.T) {
	_, canon, err := ParseWeb("hello -world")
	require.NoError(t, err)
	require.Equal(t, "(hello AND NOT world)", canon)
}

func TestParseWebOr(t *testing.T) {
	_, canon, err := ParseWeb("hello OR world")
	require.NoError(t, err)
	require.Equal(t, "(hello OR world)", canon)
}

func TestParseWebQuotedPhrase(t *testing.T) {
	_, canon, err := ParseWeb(`"hello world"`)
	require.NoError(t, err)
	require.Equal(t, `"hello world"`, canon)
}

func TestParseWebParenthesizedSubexpr(t *testing.T) {
	_, canon, err := ParseWeb("a (b OR c)")
	require.NoError(t, err)
	require.Equal(t, "(a AND (b OR c))", canon)
}

func TestParseWebCanonicalFeedsASTParser(t *testing.T) {
	_, canon, err := ParseWeb("+alpha -beta gamma OR delta")
	require.NoError(t, err)
	reparsed, err := Parse(canon)
	require.NoError(t, err)
	require.Equal(t, canon, Canonical(reparsed))
}

func TestParseWebOptionalTermsFieldIsUnpopulated(t *testing.T) {
	expr, _, err := ParseWeb("hello")
	require.NoError(t, err)
	require.Nil(t, expr.OptionalTerms)
}
