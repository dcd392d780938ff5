package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguages(t *testing.T) {
	got := Languages()
	assert.Equal(t, []Language{JavaScript, Python, Java, Cpp, C, Go, Ruby}, got)

	got[0] = "cobol"
	assert.Equal(t, JavaScript, Languages()[0])
}

func TestParseLanguage(t *testing.T) {
	for _, l := range Languages() {
		parsed, err := ParseLanguage(string(l))
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
		assert.True(t, l.Valid())
	}

	_, err := ParseLanguage("Python")
	assert.Error(t, err)
	_, err = ParseLanguage("")
	assert.Error(t, err)
	assert.False(t, Language("rust").Valid())
}

func TestTemplate(t *testing.T) {
	for _, l := range Languages() {
		assert.Contains(t, Template(l), "Hello, World!", l)
	}
	assert.Contains(t, Template(Java), "public class Main")
	assert.Equal(t, Template(JavaScript), Template("rust"))
}
