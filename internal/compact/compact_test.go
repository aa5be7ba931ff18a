package compact

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestAppend_Format(t *testing.T) {
	got := Append("", "hola", "qué quieres", DefaultCap)
	assert.Equal(t, "\nUser: hola\nEx: qué quieres", got)

	got = Append(got, "nada", "ok", DefaultCap)
	assert.Equal(t, "\nUser: hola\nEx: qué quieres\nUser: nada\nEx: ok", got)
}

func TestAppend_TruncatesToExactTail(t *testing.T) {
	memory := strings.Repeat("m", 1900)
	user := strings.Repeat("u", 140)
	assistant := strings.Repeat("e", 147) // 7 + 140 + 5 + 147 = 299 added
	full := memory + "\nUser: " + user + "\nEx: " + assistant
	assert.Equal(t, 2199, len(full))

	got := Append(memory, user, assistant, 2000)
	assert.Equal(t, 2000, len(got))
	assert.Equal(t, full[len(full)-2000:], got)
}

func TestAppend_CountsRunesNotBytes(t *testing.T) {
	memory := strings.Repeat("ñ", 1990)
	got := Append(memory, "¿sí?", "sí", 2000)
	assert.Equal(t, 2000, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "\nUser: ¿sí?\nEx: sí"))
}

func TestAppend_BoundHoldsOverManyExchanges(t *testing.T) {
	memory := ""
	for i := 0; i < 500; i++ {
		memory = Append(memory, strings.Repeat("a", i%37), strings.Repeat("b", i%53), 300)
		assert.LessOrEqual(t, utf8.RuneCountInString(memory), 300)
	}
}

func TestAppend_ZeroCapUsesDefault(t *testing.T) {
	got := Append(strings.Repeat("x", 5000), "u", "e", 0)
	assert.Equal(t, DefaultCap, utf8.RuneCountInString(got))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", Tail("abc", 5))
	assert.Equal(t, "bc", Tail("abc", 2))
	assert.Equal(t, "", Tail("abc", 0))
	assert.Equal(t, "ño", Tail("año", 2))
}
