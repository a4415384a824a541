package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWildcard(t *testing.T) {
	e, err := Parse("*")
	require.NoError(t, err)
	assert.Equal(t, KindWildcard, e.Kind)
}

func TestParseSampleClause(t *testing.T) {
	e, err := Parse("sample:s1")
	require.NoError(t, err)
	assert.Equal(t, KindSample, e.Kind)
	assert.Equal(t, "s1", e.ID)
}

func TestParseGroupClause(t *testing.T) {
	e, err := Parse("group:g1")
	require.NoError(t, err)
	assert.Equal(t, KindGroup, e.Kind)
	assert.Equal(t, "g1", e.ID)
}

func TestParseNotAndOrPrecedence(t *testing.T) {
	// "not" binds tighter than "and", which binds tighter than "or":
	// sample:a or sample:b and not sample:c  ==  sample:a or (sample:b and (not sample:c))
	e, err := Parse("sample:a or sample:b and not sample:c")
	require.NoError(t, err)
	require.Equal(t, KindOr, e.Kind)
	assert.Equal(t, KindSample, e.Children[0].Kind)
	right := e.Children[1]
	require.Equal(t, KindAnd, right.Kind)
	assert.Equal(t, KindSample, right.Children[0].Kind)
	require.Equal(t, KindNot, right.Children[1].Kind)
	assert.Equal(t, KindSample, right.Children[1].Children[0].Kind)
}

func TestParseParenthesesOverridePrecedence(t *testing.T) {
	e, err := Parse("(sample:a or sample:b) and sample:c")
	require.NoError(t, err)
	require.Equal(t, KindAnd, e.Kind)
	require.Equal(t, KindOr, e.Children[0].Kind)
}

func TestParseParenthesesAdjacentNoWhitespace(t *testing.T) {
	e, err := Parse("(sample:a)")
	require.NoError(t, err)
	assert.Equal(t, KindSample, e.Kind)
}

func TestParseRejectsBareNotWildcard(t *testing.T) {
	_, err := Parse("not *")
	require.Error(t, err)
}

func TestParseAllowsNotWildcardAlongsidePositiveClause(t *testing.T) {
	_, err := Parse("not * and sample:a")
	require.NoError(t, err)
}

func TestParseRejectsGarbageToken(t *testing.T) {
	_, err := Parse("sample:a xor sample:b")
	require.Error(t, err)
}

func TestParseRejectsUnbalancedParens(t *testing.T) {
	_, err := Parse("(sample:a and sample:b")
	require.Error(t, err)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse("sample:a sample:b")
	require.Error(t, err)
}

func TestParseCaseInsensitiveOperators(t *testing.T) {
	e, err := Parse("sample:a AND NOT sample:b")
	require.NoError(t, err)
	assert.Equal(t, KindAnd, e.Kind)
}

func TestCompileWildcard(t *testing.T) {
	e, err := Parse("*")
	require.NoError(t, err)
	p := Compile(e)
	assert.Equal(t, "(active AND coverage_profile)", p.SQL)
	assert.Empty(t, p.Args)
	assert.Empty(t, p.ExplicitSampleIDs)
}

func TestCompileSampleClauseTracksExplicitIDs(t *testing.T) {
	e, err := Parse("sample:s1 or sample:s2")
	require.NoError(t, err)
	p := Compile(e)
	assert.ElementsMatch(t, []string{"s1", "s2"}, p.ExplicitSampleIDs)
	assert.Len(t, p.Args, 2)
}

func TestCompileGroupClauseUsesSubquery(t *testing.T) {
	e, err := Parse("group:g1")
	require.NoError(t, err)
	p := Compile(e)
	assert.Contains(t, p.SQL, "sample_groups")
	assert.Empty(t, p.ExplicitSampleIDs)
}

func TestCompileNotWraps(t *testing.T) {
	e, err := Parse("not sample:s1 and *")
	require.NoError(t, err)
	p := Compile(e)
	assert.Contains(t, p.SQL, "NOT")
}

func TestCompileDedupesRepeatedSampleID(t *testing.T) {
	e, err := Parse("sample:s1 or sample:s1")
	require.NoError(t, err)
	p := Compile(e)
	assert.Equal(t, []string{"s1"}, p.ExplicitSampleIDs)
}
