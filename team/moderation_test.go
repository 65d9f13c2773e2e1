package team

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/teammesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenyListModerator(t *testing.T) {
	m := NewDenyListModerator("blocked", "DROP TABLE", " ", "")

	out, err := m.Moderate(context.Background(), "select * from users")
	require.NoError(t, err)
	assert.Equal(t, "select * from users", out)

	_, err = m.Moderate(context.Background(), "please drop table users")
	require.ErrorIs(t, err, core.ErrModeration)
	assert.Contains(t, err.Error(), "blocked")
}

func TestModerate_Chain(t *testing.T) {
	trim := ModeratorFunc(func(_ context.Context, in string) (string, error) {
		return strings.TrimSpace(in), nil
	})
	reject := ModeratorFunc(func(_ context.Context, in string) (string, error) {
		return "", errors.New("too long")
	})

	out, err := moderate(context.Background(), []Moderator{trim}, "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = moderate(context.Background(), []Moderator{trim, reject}, "hi")
	require.ErrorIs(t, err, core.ErrModeration)
	assert.Contains(t, err.Error(), "too long")
}
