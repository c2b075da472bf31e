// Package svc provides cross-platform system service support for metacoord.
package svc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/kardianos/service"
	"github.com/rs/zerolog/log"
)

// Service defaults.
const (
	DefaultServiceName = "metacoord"
	DefaultDisplayName = "metacoord Metadata Coordinator"
	DefaultDescription = "Chunk placement and metadata coordinator for a distributed file store"

	// ServiceRunFlag marks a process started by the service manager.
	ServiceRunFlag = "--service-run"
	// ServiceNameFlag tells the service process which name it was installed under.
	ServiceNameFlag = "--service-name"
)

// RunFunc runs the coordinator until ctx is cancelled.
type RunFunc func(ctx context.Context, configPath string) error

// Program implements service.Interface for the kardianos/service library.
type Program struct {
	ConfigPath string
	Run        RunFunc

	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

// Start is called when the service starts.
// It must not block; the coordinator runs in a goroutine.
func (p *Program) Start(s service.Service) error {
	if p.Run == nil {
		return errors.New("run function not configured")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan error, 1)

	go func() {
		p.done <- p.Run(p.ctx, p.ConfigPath)
	}()

	return nil
}

// Stop is called when the service stops. It cancels the run and waits for it to return.
func (p *Program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		err := <-p.done
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// ServiceConfig holds configuration for service installation.
type ServiceConfig struct {
	Name        string // Service name (default: "metacoord")
	DisplayName string // Display name shown in service manager
	Description string // Service description
	ConfigPath  string // Path to configuration file
	UserName    string // User to run service as (Linux/macOS only)
}

// WithDefaults returns a copy of cfg with empty fields filled in.
func (cfg ServiceConfig) WithDefaults() ServiceConfig {
	if cfg.Name == "" {
		cfg.Name = DefaultServiceName
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = DefaultDisplayName
	}
	if cfg.Description == "" {
		cfg.Description = DefaultDescription
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = DefaultConfigPath()
	}
	return cfg
}

// DefaultConfigPath returns the default config file path for the platform.
func DefaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "metacoord", "metacoord.yaml")
	default: // linux, darwin
		return "/etc/metacoord/metacoord.yaml"
	}
}

// NewServiceConfig builds the kardianos service.Config for goos.
func NewServiceConfig(cfg *ServiceConfig, goos string) *service.Config {
	svcCfg := &service.Config{
		Name:        cfg.Name,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
		Arguments:   []string{"serve", ServiceRunFlag, ServiceNameFlag, cfg.Name, "--config", cfg.ConfigPath},
	}

	switch goos {
	case "linux":
		svcCfg.Dependencies = []string{"After=network-online.target", "Wants=network-online.target"}
		svcCfg.Option = service.KeyValue{
			"Restart":    "on-failure",
			"RestartSec": "5",
		}
		svcCfg.UserName = cfg.UserName
	case "darwin":
		svcCfg.Option = service.KeyValue{
			"KeepAlive": true,
			"RunAtLoad": true,
		}
		svcCfg.UserName = cfg.UserName
	case "windows":
		svcCfg.Option = service.KeyValue{
			"OnFailure":      "restart",
			"OnFailureDelay": "5s",
		}
	}

	return svcCfg
}

// CreateService creates a new service instance for prg.
func CreateService(prg *Program, cfg *ServiceConfig) (service.Service, error) {
	return service.New(prg, NewServiceConfig(cfg, runtime.GOOS))
}

func newControlService(cfg *ServiceConfig) (service.Service, error) {
	svc, err := CreateService(&Program{ConfigPath: cfg.ConfigPath}, cfg)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// Install installs the service. With force, an existing installation is replaced.
func Install(cfg *ServiceConfig, force bool) error {
	svc, err := newControlService(cfg)
	if err != nil {
		return err
	}

	if status, err := svc.Status(); err == nil && status != service.StatusUnknown {
		if !force {
			return fmt.Errorf("service %q already installed; use --force to reinstall", cfg.Name)
		}
		if status == service.StatusRunning {
			if err := svc.Stop(); err != nil {
				log.Warn().Err(err).Msg("failed to stop service")
			}
		}
		if err := svc.Uninstall(); err != nil {
			log.Warn().Err(err).Msg("failed to uninstall service")
		}
	}

	if err := svc.Install(); err != nil {
		return fmt.Errorf("install service: %w", err)
	}
	return nil
}

// Uninstall stops the service if it is running and removes it.
func Uninstall(cfg *ServiceConfig) error {
	svc, err := newControlService(cfg)
	if err != nil {
		return err
	}

	if status, _ := svc.Status(); status == service.StatusRunning {
		if err := svc.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to stop service")
		}
	}

	if err := svc.Uninstall(); err != nil {
		return fmt.Errorf("uninstall service: %w", err)
	}
	return nil
}

// Control runs one of service.ControlAction ("start", "stop", "restart") against the
// installed service.
func Control(cfg *ServiceConfig, action string) error {
	svc, err := newControlService(cfg)
	if err != nil {
		return err
	}
	if err := service.Control(svc, action); err != nil {
		return fmt.Errorf("%s service: %w", action, err)
	}
	return nil
}

// Status returns the service status.
func Status(cfg *ServiceConfig) (service.Status, error) {
	svc, err := newControlService(cfg)
	if err != nil {
		return service.StatusUnknown, err
	}
	return svc.Status()
}

// StatusString returns a human-readable status string.
func StatusString(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Run runs prg under the service manager and blocks until the service is stopped.
func Run(prg *Program, cfg *ServiceConfig) error {
	svc, err := CreateService(prg, cfg)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return svc.Run()
}

// CheckPrivileges checks if the current user has sufficient privileges for service management.
func CheckPrivileges() error {
	if runtime.GOOS == "windows" {
		// Install fails with a clear error when not elevated.
		return nil
	}
	if os.Geteuid() != 0 {
		return fmt.Errorf("root privileges required (use sudo)")
	}
	return nil
}

// ParseServiceArgs extracts the service name and config path from the arguments the service
// manager passes, applying defaults for anything missing.
func ParseServiceArgs(args []string) ServiceConfig {
	var cfg ServiceConfig
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case ServiceNameFlag:
			cfg.Name = args[i+1]
		case "--config", "-c":
			cfg.ConfigPath = args[i+1]
		}
	}
	return cfg.WithDefaults()
}

// IsServiceMode reports whether args contain ServiceRunFlag.
func IsServiceMode(args []string) bool {
	for _, arg := range args {
		if arg == ServiceRunFlag {
			return true
		}
	}
	return false
}
