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

func mockLauncher(b *mock.Browser) Launcher {
	return LauncherFunc(func(Config) (core.Browser, error) { return b, nil })
}

func fastConfig() Config {
	return Config{
		BaseURL:        "http://localhost:5173/",
		DefaultTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
}

func TestOpen_RecordsInitialContext(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s, err := Open(fastConfig(), mockLauncher(b))
	require.NoError(t, err)

	assert.Equal(t, "window-1", s.Active())
	assert.Equal(t, "window-1", s.Primary())
	assert.Equal(t, []string{"window-1"}, s.Known())
}

func TestOpen_LaunchFailure(t *testing.T) {
	l := LauncherFunc(func(Config) (core.Browser, error) { return nil, errors.New("geckodriver not found") })
	_, err := Open(fastConfig(), l)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSessionNotCreated))
	assert.Contains(t, err.Error(), "geckodriver not found")
}

func TestOpen_ClosesBrowserWhenContextsUnavailable(t *testing.T) {
	b := mock.New(nil, mock.Config{FailOnCall: 1})
	_, err := Open(fastConfig(), mockLauncher(b))

	require.Error(t, err)
	assert.True(t, b.Closed(), "browser should be closed after a failed start")
}

func TestRun_ClosesOnSuccessAndError(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	err := Run(fastConfig(), mockLauncher(b), func(s *Session) error { return nil })
	require.NoError(t, err)
	assert.True(t, b.Closed())

	b = mock.New(nil, mock.Config{})
	boom := errors.New("scenario blew up")
	err = Run(fastConfig(), mockLauncher(b), func(s *Session) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.Closed())
}

func TestRun_ClosesOnPanic(t *testing.T) {
	b := mock.New(nil, mock.Config{})

	func() {
		defer func() {
			r := recover()
			assert.Equal(t, "driver exploded", r)
		}()
		_ = Run(fastConfig(), mockLauncher(b), func(s *Session) error {
			panic("driver exploded")
		})
	}()

	assert.True(t, b.Closed(), "browser must be closed even when fn panics")
}

func TestClose_Idempotent(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s, err := New(b, fastConfig())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
}

func TestResolveURL(t *testing.T) {
	s, err := New(mock.New(nil, mock.Config{}), fastConfig())
	require.NoError(t, err)

	tests := []struct {
		in, want string
	}{
		{"", "http://localhost:5173/"},
		{"/products", "http://localhost:5173/products"},
		{"cart", "http://localhost:5173/cart"},
		{"https://accounts.google.com/", "https://accounts.google.com/"},
	}
	for _, tt := range tests {
		got, err := s.ResolveURL(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "ResolveURL(%q)", tt.in)
	}
}

func TestResolveURL_BaseWithoutTrailingSlash(t *testing.T) {
	cfg := fastConfig()
	cfg.BaseURL = "http://localhost:5173/shop"
	s, err := New(mock.New(nil, mock.Config{}), cfg)
	require.NoError(t, err)

	got, err := s.ResolveURL("cart")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173/shop/cart", got)
}

func TestNavigate_AdvancesGeneration(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s, err := New(b, fastConfig())
	require.NoError(t, err)

	before := s.Generation()
	require.NoError(t, s.Navigate("/products"))
	assert.Greater(t, s.Generation(), before)

	u, err := s.CurrentURL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173/products", u)
}

func TestNavigate_FailureStillAdvances(t *testing.T) {
	b := mock.New(nil, mock.Config{})
	s, err := New(b, fastConfig())
	require.NoError(t, err)
	b.ShowAlert("blocking")

	before := s.Generation()
	err = s.Navigate("/")
	assert.True(t, errors.Is(err, core.ErrUnexpectedAlert))
	assert.Greater(t, s.Generation(), before)
}
