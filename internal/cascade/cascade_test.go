package cascade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstReturnsFirstSuccess(t *testing.T) {
	var ran []string
	mk := func(name string, v string, ok bool) Strategy[string] {
		return Func(name, func(context.Context) (string, bool) {
			ran = append(ran, name)
			return v, ok
		})
	}

	v, name, ok := First(context.Background(), nil,
		mk("meta", "", false),
		mk("jsonld", "b.jpg", true),
		mk("dom", "c.jpg", true),
	)
	assert.True(t, ok)
	assert.Equal(t, "b.jpg", v)
	assert.Equal(t, "jsonld", name)
	assert.Equal(t, []string{"meta", "jsonld"}, ran)
}

func TestFirstAllMiss(t *testing.T) {
	v, name, ok := First(context.Background(), nil,
		Func("a", func(context.Context) (int, bool) { return 0, false }),
	)
	assert.False(t, ok)
	assert.Zero(t, v)
	assert.Empty(t, name)
}

func TestFirstRecoversPanic(t *testing.T) {
	v, _, ok := First(context.Background(), nil,
		Func("boom", func(context.Context) (string, bool) { panic("bad json") }),
		Func("next", func(context.Context) (string, bool) { return "ok", true }),
	)
	assert.True(t, ok)
	assert.Equal(t, "ok", v)
}

func TestFirstStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, _, ok := First(ctx, nil, Func("a", func(context.Context) (string, bool) {
		called = true
		return "x", true
	}))
	assert.False(t, ok)
	assert.False(t, called)
}
