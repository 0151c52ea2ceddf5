package webdriver

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/session"
	"github.com/devicelab-dev/shopsmoke/pkg/wait"
)

const (
	// DefaultDriverBinary is looked up on PATH when no driver path is configured.
	DefaultDriverBinary = "geckodriver"

	startupTimeout = 30 * time.Second
	startupPoll    = 100 * time.Millisecond
	pageLoadLimit  = 60 * time.Second
	scriptLimit    = 30 * time.Second
)

// Service is a driver process listening on localhost.
type Service struct {
	cmd     *exec.Cmd
	url     string
	logFile *os.File
}

// StartService runs the driver binary at path on a free port and waits until
// it reports ready. Driver output goes to logPath when set, and to the run
// log otherwise.
func StartService(path, logPath string) (*Service, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("allocate driver port: %w", err)
	}

	s := &Service{
		cmd: exec.Command(path, "--port", strconv.Itoa(port)),
		url: fmt.Sprintf("http://127.0.0.1:%d", port),
	}
	s.cmd.Stdout = logger.GetWriter()
	s.cmd.Stderr = s.cmd.Stdout
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err == nil {
			if f, err := os.Create(logPath); err == nil {
				s.logFile = f
				s.cmd.Stdout = f
				s.cmd.Stderr = f
			}
		}
	}

	logger.Info("starting %s on port %d", path, port)
	if err := s.cmd.Start(); err != nil {
		s.closeLog()
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	client := NewClient(s.url)
	err = wait.For(startupTimeout, startupPoll, func() (bool, error) {
		ready, err := client.Ready()
		if err != nil {
			// Not listening yet.
			return false, nil
		}
		return ready, nil
	})
	if err != nil {
		_ = s.Stop()
		return nil, fmt.Errorf("%s did not become ready: %w", path, err)
	}
	return s, nil
}

// URL returns the service endpoint.
func (s *Service) URL() string {
	return s.url
}

// Stop kills the driver process.
func (s *Service) Stop() error {
	defer s.closeLog()
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	err := s.cmd.Process.Kill()
	_ = s.cmd.Wait()
	s.cmd = nil
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (s *Service) closeLog() {
	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FirefoxCapabilities returns the capabilities for a Firefox session. User
// prompts are left open so the engine can observe and handle them.
func FirefoxCapabilities(cfg session.Config) map[string]interface{} {
	args := []string{}
	if cfg.Private {
		args = append(args, "-private")
	}
	if cfg.Headless {
		args = append(args, "-headless")
	}
	prefs := map[string]interface{}{}
	if cfg.AllowPopups {
		prefs["dom.disable_open_during_load"] = false
	}

	return map[string]interface{}{
		"browserName":             "firefox",
		"pageLoadStrategy":        "normal",
		"unhandledPromptBehavior": "ignore",
		"moz:firefoxOptions": map[string]interface{}{
			"args":  args,
			"prefs": prefs,
		},
	}
}

// Launcher starts Firefox through geckodriver, or attaches to the server at
// session.Config.ServerURL when set.
type Launcher struct {
	// LogPath receives driver process output. Empty discards it.
	LogPath string
	// Capabilities overrides FirefoxCapabilities.
	Capabilities func(cfg session.Config) map[string]interface{}
}

// Launch implements session.Launcher.
func (l *Launcher) Launch(cfg session.Config) (core.Browser, error) {
	var service *Service
	serverURL := cfg.ServerURL
	if serverURL == "" {
		path, err := driverPath(cfg.DriverPath)
		if err != nil {
			return nil, err
		}
		service, err = StartService(path, l.LogPath)
		if err != nil {
			return nil, err
		}
		serverURL = service.URL()
	}

	caps := FirefoxCapabilities
	if l.Capabilities != nil {
		caps = l.Capabilities
	}

	client := NewClient(serverURL)
	if _, err := client.NewSession(caps(cfg)); err != nil {
		if service != nil {
			_ = service.Stop()
		}
		return nil, mapError(err)
	}
	if err := client.SetTimeouts(0, pageLoadLimit, scriptLimit); err != nil {
		logger.Warn("set session timeouts: %v", err)
	}
	logger.Info("webdriver session %s on %s", client.SessionID(), serverURL)
	return NewBrowser(client, service), nil
}

func driverPath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", core.ErrSessionNotCreated.WithMessagef("driver not found at %s", configured).WithCause(err)
		}
		return configured, nil
	}
	path, err := exec.LookPath(DefaultDriverBinary)
	if err != nil {
		return "", core.ErrSessionNotCreated.
			WithMessagef("%s not found on PATH; install it or pass --driver-path", DefaultDriverBinary).
			WithCause(err)
	}
	return path, nil
}

var _ session.Launcher = (*Launcher)(nil)
