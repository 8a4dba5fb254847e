package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	d := New()
	called := false
	d.Register("git", "clone_repo", func(ctx context.Context, msg any) error {
		called = true
		return nil
	})

	err := d.Dispatch(context.Background(), "git", "clone_repo", nil)

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestDispatchUnknownKeyIsNoop(t *testing.T) {
	d := New()
	err := d.Dispatch(context.Background(), "git", "nope", nil)
	assert.NoError(t, err)
}

func TestRegisteredReportsPresence(t *testing.T) {
	d := New()
	assert.False(t, d.Registered(NoCommand, "user_input_normal"))
	d.Register(NoCommand, "user_input_normal", func(ctx context.Context, msg any) error { return nil })
	assert.True(t, d.Registered(NoCommand, "user_input_normal"))
}

func TestLaterRegistrationReplacesEarlier(t *testing.T) {
	d := New()
	order := []int{}
	d.Register("git", "edit", func(ctx context.Context, msg any) error {
		order = append(order, 1)
		return nil
	})
	d.Register("git", "edit", func(ctx context.Context, msg any) error {
		order = append(order, 2)
		return nil
	})

	d.Dispatch(context.Background(), "git", "edit", nil)

	assert.Equal(t, []int{2}, order)
}
