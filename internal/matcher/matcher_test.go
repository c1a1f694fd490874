package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileJaneDoe(t *testing.T) {
	p := Compile("Jane Doe")
	require.NotNil(t, p)

	matches := []string{
		"Jane Doe spoke today",
		"an interview with JANE DOE.",
		"Doe, Jane announced",
		"doe jane",
		"quoted by Jane D. yesterday",
		"J. Doe said",
		"(j.doe)",
		"Jane\tDoe",
	}
	for _, s := range matches {
		assert.True(t, p.Match(s), s)
	}

	misses := []string{
		"Jane Doering",
		"Janet Doe",
		"Mary Jane Doerr",
		"JaneDoe",
		"",
	}
	for _, s := range misses {
		assert.False(t, p.Match(s), s)
	}
}

func TestSearchTermsOrder(t *testing.T) {
	p := Compile(`  "Jane Doe"  `)
	require.NotNil(t, p)
	assert.Equal(t, []string{"jane doe", "doe jane", "jane d.", "j. doe"}, p.SearchTerms())
}

func TestCompileDeterministic(t *testing.T) {
	a := Compile("Amine Raghib")
	b := Compile("Amine Raghib")
	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, a.SearchTerms(), b.SearchTerms())
}

func TestCompileSingleWord(t *testing.T) {
	p := Compile("Tesla")
	require.NotNil(t, p)
	assert.Equal(t, []string{"tesla"}, p.SearchTerms())
	assert.True(t, p.Match("Tesla shares rose"))
	assert.True(t, p.Match("shares of tesla."))
	assert.False(t, p.Match("Teslas everywhere"))
}

func TestCompileEmpty(t *testing.T) {
	assert.Nil(t, Compile(""))
	assert.Nil(t, Compile(`  ""  `))

	var p *Pattern
	assert.False(t, p.Match("anything"))
	assert.Nil(t, p.SearchTerms())
}

func TestCompileEscapesMetacharacters(t *testing.T) {
	p := Compile("C++ Corp")
	require.NotNil(t, p)
	assert.True(t, p.Match("news about c++ corp today"))
	assert.False(t, p.Match("news about cc corp"))
}

func TestCompileUnicode(t *testing.T) {
	p := Compile("Zoë Ångström")
	require.NotNil(t, p)
	assert.True(t, p.Match("zoë ångström wins"))
	assert.True(t, p.Match("Z. Ångström"))
	assert.False(t, p.Match("Zoë Ångströms"))
}

func TestFind(t *testing.T) {
	p := Compile("Jane Doe")
	got, ok := p.Find("A note from Doe, Jane on Friday")
	require.True(t, ok)
	assert.Equal(t, "Doe, Jane", got)
}
