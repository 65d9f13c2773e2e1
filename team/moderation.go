package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/teammesh/core"
)

// Moderator checks the initiating request of a run. It returns the
// (possibly rewritten) input, or an error to reject it.
type Moderator interface {
	Moderate(ctx context.Context, input string) (string, error)
}

// ModeratorFunc adapts a function to the Moderator interface.
type ModeratorFunc func(ctx context.Context, input string) (string, error)

// Moderate implements Moderator.
func (f ModeratorFunc) Moderate(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// DenyListModerator rejects inputs containing any of a list of phrases,
// compared case-insensitively.
type DenyListModerator struct {
	phrases []string
	message string
}

// NewDenyListModerator creates a moderator rejecting the given phrases. Empty
// phrases are ignored. message is reported on rejection; when empty a generic
// message is used.
func NewDenyListModerator(message string, phrases ...string) *DenyListModerator {
	m := &DenyListModerator{message: message}
	if m.message == "" {
		m.message = "input contains a denied phrase"
	}
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			m.phrases = append(m.phrases, strings.ToLower(p))
		}
	}
	return m
}

// Moderate implements Moderator.
func (m *DenyListModerator) Moderate(_ context.Context, input string) (string, error) {
	lower := strings.ToLower(input)
	for _, p := range m.phrases {
		if strings.Contains(lower, p) {
			return "", fmt.Errorf("%w: %s", core.ErrModeration, m.message)
		}
	}
	return input, nil
}

// moderate applies the moderators in order. Errors not already wrapping
// core.ErrModeration are wrapped so callers can test for it.
func moderate(ctx context.Context, moderators []Moderator, input string) (string, error) {
	for i, m := range moderators {
		out, err := m.Moderate(ctx, input)
		if err != nil {
			if !errors.Is(err, core.ErrModeration) {
				err = fmt.Errorf("%w: moderator %d: %w", core.ErrModeration, i, err)
			}
			return "", err
		}
		input = out
	}
	return input, nil
}
