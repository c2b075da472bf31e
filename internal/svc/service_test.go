package svc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kardianos/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceConfigWithDefaults(t *testing.T) {
	cfg := ServiceConfig{ConfigPath: "/tmp/m.yaml"}.WithDefaults()

	assert.Equal(t, DefaultServiceName, cfg.Name)
	assert.Equal(t, DefaultDisplayName, cfg.DisplayName)
	assert.Equal(t, DefaultDescription, cfg.Description)
	assert.Equal(t, "/tmp/m.yaml", cfg.ConfigPath)

	assert.Equal(t, DefaultConfigPath(), ServiceConfig{}.WithDefaults().ConfigPath)
}

func TestNewServiceConfig(t *testing.T) {
	cfg := &ServiceConfig{Name: "metacoord", ConfigPath: "/etc/metacoord/metacoord.yaml", UserName: "meta"}

	linux := NewServiceConfig(cfg, "linux")
	assert.Equal(t, []string{"serve", "--service-run", "--service-name", "metacoord", "--config", "/etc/metacoord/metacoord.yaml"}, linux.Arguments)
	assert.Equal(t, "on-failure", linux.Option["Restart"])
	assert.Equal(t, "meta", linux.UserName)
	assert.Contains(t, linux.Dependencies, "After=network-online.target")

	darwin := NewServiceConfig(cfg, "darwin")
	assert.Equal(t, true, darwin.Option["KeepAlive"])

	windows := NewServiceConfig(cfg, "windows")
	assert.Empty(t, windows.UserName)
	assert.Equal(t, "restart", windows.Option["OnFailure"])
}

func TestParseServiceArgs(t *testing.T) {
	cfg := &ServiceConfig{Name: "coord-a", ConfigPath: "/etc/coord-a.yaml"}
	installed := NewServiceConfig(cfg, "darwin")

	parsed := ParseServiceArgs(installed.Arguments)
	assert.Equal(t, "coord-a", parsed.Name)
	assert.Equal(t, "/etc/coord-a.yaml", parsed.ConfigPath)

	// The file the service writes is the one "service logs" tails.
	_, args, err := logCommand("darwin", LogOptions{ServiceName: parsed.Name})
	require.NoError(t, err)
	assert.Equal(t, LogFilePath(parsed.Name), args[len(args)-1])

	defaults := ParseServiceArgs([]string{"serve", "--service-run"})
	assert.Equal(t, DefaultServiceName, defaults.Name)
	assert.Equal(t, DefaultConfigPath(), defaults.ConfigPath)
}

func TestIsServiceMode(t *testing.T) {
	assert.True(t, IsServiceMode([]string{"serve", "--service-run", "--config", "x"}))
	assert.False(t, IsServiceMode([]string{"serve", "--config", "x"}))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "running", StatusString(service.StatusRunning))
	assert.Equal(t, "stopped", StatusString(service.StatusStopped))
	assert.Equal(t, "unknown", StatusString(service.StatusUnknown))
}

func TestProgramStartStop(t *testing.T) {
	started := make(chan string, 1)
	prg := &Program{
		ConfigPath: "/tmp/m.yaml",
		Run: func(ctx context.Context, configPath string) error {
			started <- configPath
			<-ctx.Done()
			return ctx.Err()
		},
	}

	require.NoError(t, prg.Start(nil))
	select {
	case path := <-started:
		assert.Equal(t, "/tmp/m.yaml", path)
	case <-time.After(time.Second):
		t.Fatal("run function not started")
	}

	assert.NoError(t, prg.Stop(nil), "context cancellation is a clean stop")
}

func TestProgramStopReturnsRunError(t *testing.T) {
	boom := errors.New("listen failed")
	prg := &Program{Run: func(context.Context, string) error { return boom }}

	require.NoError(t, prg.Start(nil))
	assert.ErrorIs(t, prg.Stop(nil), boom)
}

func TestProgramStartWithoutRun(t *testing.T) {
	assert.Error(t, (&Program{}).Start(nil))
	assert.NoError(t, (&Program{}).Stop(nil))
}

func TestLogCommand(t *testing.T) {
	name, args, err := logCommand("linux", LogOptions{ServiceName: "metacoord", Follow: true})
	require.NoError(t, err)
	assert.Equal(t, "journalctl", name)
	assert.Equal(t, []string{"-u", "metacoord", "-n", "50", "--no-pager", "-f"}, args)

	name, args, err = logCommand("darwin", LogOptions{ServiceName: "metacoord", Lines: 10})
	require.NoError(t, err)
	assert.Equal(t, "tail", name)
	assert.Equal(t, []string{"-n", "10", "/var/log/metacoord.log"}, args)

	name, args, err = logCommand("windows", LogOptions{ServiceName: "metacoord", Lines: 5})
	require.NoError(t, err)
	assert.Equal(t, "powershell", name)
	assert.Contains(t, args[2], "-MaxEvents 5")

	_, _, err = logCommand("windows", LogOptions{ServiceName: "metacoord", Follow: true})
	assert.Error(t, err)

	_, _, err = logCommand("plan9", LogOptions{ServiceName: "metacoord"})
	assert.Error(t, err)
}
