package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const envHome = "SHOPSMOKE_HOME"

// HomeSource says how the home directory was found.
type HomeSource string

const (
	HomeFromEnv    HomeSource = "env"    // $SHOPSMOKE_HOME
	HomeFromBinary HomeSource = "binary" // binary installed as <home>/bin/shopsmoke
	HomeFromCwd    HomeSource = "cwd"    // development fallback
)

var (
	homeOnce   sync.Once
	homeDir    string
	homeSource HomeSource
)

// GetHome returns the shopsmoke home directory, which holds drivers/ with
// browser driver binaries. It is resolved once per process from
// $SHOPSMOKE_HOME, then the binary location, then the working directory.
func GetHome() string {
	homeOnce.Do(func() {
		homeDir, homeSource = resolveHome()
	})
	return homeDir
}

// GetHomeSource reports which rule GetHome used.
func GetHomeSource() HomeSource {
	GetHome()
	return homeSource
}

// GetDriversDir returns <home>/drivers.
func GetDriversDir() string {
	return filepath.Join(GetHome(), "drivers")
}

// FindDriver returns the installed driver binary called name, looking in
// <home>/drivers then <home>/bin. It returns "" when neither has it so the
// caller can fall back to PATH.
func FindDriver(name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	for _, dir := range []string{GetDriversDir(), filepath.Join(GetHome(), "bin")} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

func resolveHome() (string, HomeSource) {
	if env := os.Getenv(envHome); env != "" {
		return env, HomeFromEnv
	}

	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		if bin := filepath.Dir(exe); filepath.Base(bin) == "bin" {
			return filepath.Dir(bin), HomeFromBinary
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return cwd, HomeFromCwd
}

// ResetHome forgets the resolved home so tests can change $SHOPSMOKE_HOME.
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
	homeSource = ""
}
