package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/driver/mock"
)

func newSession(t *testing.T, b *mock.Browser) *Session {
	t.Helper()
	s, err := New(b, fastConfig())
	require.NoError(t, err)
	return s
}

func TestAwaitNew_SwitchesToPopup(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s := newSession(t, b)
	sw := NewSwitcher(s)

	b.After(20*time.Millisecond, func(b *mock.Browser) {
		b.OpenWindow("https://accounts.google.com/signin")
	})
	gen := s.Generation()

	handle, err := sw.AwaitNew(time.Second)
	require.NoError(t, err)

	assert.Equal(t, "window-2", handle)
	assert.Equal(t, handle, s.Active())
	assert.Equal(t, handle, b.ActiveHandle())
	assert.Equal(t, []string{"window-1", "window-2"}, s.Known())
	assert.Greater(t, s.Generation(), gen)
}

func TestAwaitNew_TimeoutLeavesStateUnchanged(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s := newSession(t, b)
	sw := NewSwitcher(s)

	_, err := sw.AwaitNew(30 * time.Millisecond)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrContextSwitchTimeout))
	assert.True(t, errors.Is(err, core.ErrTimeoutExceeded))
	assert.Equal(t, "window-1", s.Active())
	assert.Equal(t, []string{"window-1"}, s.Known())
	assert.Equal(t, "window-1", b.ActiveHandle())
}

func TestAwaitNew_AmbiguousUntilSurplusCloses(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s := newSession(t, b)
	sw := NewSwitcher(s)

	first := b.OpenWindow("https://a.example/")
	second := b.OpenWindow("https://b.example/")

	_, err := sw.AwaitNew(30 * time.Millisecond)
	require.True(t, errors.Is(err, core.ErrContextSwitchTimeout), "two new contexts must not resolve")
	assert.Equal(t, "window-1", s.Active())

	b.CloseWindow(first)
	handle, err := sw.AwaitNew(time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, handle)
}

func TestAwaitNew_SwitchFailureRestoresPrevious(t *testing.T) {
	var failSwitch bool
	b := mock.New(nil, mock.Config{FailOn: func(method string) error {
		if method == "SwitchToContext" && failSwitch {
			failSwitch = false
			return core.ErrDriverFault.WithMessage("no such window")
		}
		return nil
	}})
	s := newSession(t, b)
	sw := NewSwitcher(s)
	b.OpenWindow("https://accounts.google.com/")
	failSwitch = true

	_, err := sw.AwaitNew(time.Second)

	require.Error(t, err)
	assert.Equal(t, "window-1", s.Active())
	assert.Equal(t, []string{"window-1"}, s.Known())
	assert.Equal(t, "window-1", b.ActiveHandle())
}

func TestAwaitNew_DriverFaultIsNotTimeout(t *testing.T) {
	b := mock.New(nil, mock.Config{FailOn: func(method string) error {
		if method == "ContextHandles" {
			return errors.New("connection reset")
		}
		return nil
	}})
	s, err := New(mock.New(nil, mock.Config{}), fastConfig())
	require.NoError(t, err)
	s.browser = b

	_, err = NewSwitcher(s).AwaitNew(time.Second)
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrContextSwitchTimeout))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAwaitClosed_ReturnsToOpener(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s := newSession(t, b)
	sw := NewSwitcher(s)
	popup := b.OpenWindow("https://accounts.google.com/")
	_, err := sw.AwaitNew(time.Second)
	require.NoError(t, err)

	b.After(20*time.Millisecond, func(b *mock.Browser) { b.CloseWindow(popup) })

	back, err := sw.AwaitClosed(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "window-1", back)
	assert.Equal(t, "window-1", s.Active())
	assert.Equal(t, "window-1", b.ActiveHandle())
	assert.Equal(t, []string{"window-1"}, s.Known())
}

func TestAwaitClosed_TimeoutKeepsPopupActive(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s := newSession(t, b)
	sw := NewSwitcher(s)
	popup := b.OpenWindow("https://accounts.google.com/")
	_, err := sw.AwaitNew(time.Second)
	require.NoError(t, err)

	_, err = sw.AwaitClosed(30 * time.Millisecond)

	require.True(t, errors.Is(err, core.ErrContextSwitchTimeout))
	assert.Equal(t, popup, s.Active())
	assert.Equal(t, []string{"window-1", popup}, s.Known())
}

func TestAwaitClosed_NestedPopups(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s := newSession(t, b)
	sw := NewSwitcher(s)

	outer := b.OpenWindow("https://a.example/")
	_, err := sw.AwaitNew(time.Second)
	require.NoError(t, err)
	inner := b.OpenWindow("https://b.example/")
	_, err = sw.AwaitNew(time.Second)
	require.NoError(t, err)

	b.CloseWindow(inner)
	back, err := sw.AwaitClosed(time.Second)
	require.NoError(t, err)
	assert.Equal(t, outer, back)

	b.CloseWindow(outer)
	back, err = sw.AwaitClosed(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "window-1", back)
}

func TestRestore(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s := newSession(t, b)
	sw := NewSwitcher(s)

	require.NoError(t, sw.Restore(), "restore on primary is a no-op")

	b.OpenWindow("https://accounts.google.com/")
	_, err := sw.AwaitNew(time.Second)
	require.NoError(t, err)

	require.NoError(t, sw.Restore())
	assert.Equal(t, "window-1", s.Active())
	assert.Equal(t, "window-1", b.ActiveHandle())
}
