package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("SHOPSMOKE_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_FallbackNotEmpty(t *testing.T) {
	ResetHome()
	t.Setenv("SHOPSMOKE_HOME", "")

	// Either the binary's parent (test binaries rarely live in bin/) or cwd.
	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("SHOPSMOKE_HOME", "/first")

	first := GetHome()

	// Changing the env must not affect the cached value
	t.Setenv("SHOPSMOKE_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetDriversDir(t *testing.T) {
	ResetHome()
	t.Setenv("SHOPSMOKE_HOME", "/test/home")

	got := GetDriversDir()
	want := filepath.Join("/test/home", "drivers")
	if got != want {
		t.Errorf("GetDriversDir() = %q, want %q", got, want)
	}
}

func TestFindDriver(t *testing.T) {
	home := t.TempDir()
	ResetHome()
	t.Setenv("SHOPSMOKE_HOME", home)

	if got := FindDriver("geckodriver"); got != "" {
		t.Errorf("FindDriver() = %q before install, want empty", got)
	}

	name := "geckodriver"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if err := os.MkdirAll(filepath.Join(home, "drivers"), 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(home, "drivers", name)
	if err := os.WriteFile(want, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	if got := FindDriver("geckodriver"); got != want {
		t.Errorf("FindDriver() = %q, want %q", got, want)
	}
}

func TestGetHomeSource(t *testing.T) {
	ResetHome()
	t.Setenv("SHOPSMOKE_HOME", "/from/env")
	if got := GetHomeSource(); got != HomeFromEnv {
		t.Errorf("GetHomeSource() = %q, want %q", got, HomeFromEnv)
	}

	ResetHome()
	t.Setenv("SHOPSMOKE_HOME", "")
	if got := GetHomeSource(); got == HomeFromEnv || got == "" {
		t.Errorf("GetHomeSource() = %q without env", got)
	}
}

func TestFindDriver_BinDir(t *testing.T) {
	home := t.TempDir()
	ResetHome()
	t.Setenv("SHOPSMOKE_HOME", home)

	name := "chromedriver"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if err := os.MkdirAll(filepath.Join(home, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(home, "bin", name)
	if err := os.WriteFile(want, nil, 0755); err != nil {
		t.Fatal(err)
	}
	if got := FindDriver("chromedriver"); got != want {
		t.Errorf("FindDriver() = %q, want %q", got, want)
	}

	// A directory with the driver's name is not a driver.
	if err := os.MkdirAll(filepath.Join(home, "drivers", "geckodriver"), 0755); err != nil {
		t.Fatal(err)
	}
	if got := FindDriver("geckodriver"); got != "" {
		t.Errorf("FindDriver() = %q for a directory, want empty", got)
	}
}
