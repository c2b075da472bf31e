package svc

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
)

// LogDir holds the service log file on linux and darwin.
const LogDir = "/var/log"

// LogFilePath returns the file the service process writes its log to.
func LogFilePath(serviceName string) string {
	return filepath.Join(LogDir, serviceName+".log")
}

// LogOptions configures log viewing behavior.
type LogOptions struct {
	ServiceName string
	Follow      bool
	Lines       int
}

// ViewLogs displays service logs using the platform's log tool.
func ViewLogs(opts LogOptions) error {
	name, args, err := logCommand(runtime.GOOS, opts)
	if err != nil {
		return err
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

// logCommand returns the program and arguments that show the service's logs on goos.
func logCommand(goos string, opts LogOptions) (string, []string, error) {
	if opts.Lines <= 0 {
		opts.Lines = 50
	}
	lines := strconv.Itoa(opts.Lines)

	switch goos {
	case "linux":
		args := []string{"-u", opts.ServiceName, "-n", lines, "--no-pager"}
		if opts.Follow {
			args = append(args, "-f")
		}
		return "journalctl", args, nil

	case "darwin":
		// launchd does not capture stderr; the service writes its own log file.
		args := []string{"-n", lines}
		if opts.Follow {
			args = append(args, "-f")
		}
		args = append(args, LogFilePath(opts.ServiceName))
		return "tail", args, nil

	case "windows":
		if opts.Follow {
			return "", nil, fmt.Errorf("following logs is not supported on windows; use Event Viewer")
		}
		script := fmt.Sprintf(
			"Get-WinEvent -FilterHashtable @{LogName='Application'; ProviderName='%s'} -MaxEvents %d -ErrorAction SilentlyContinue | Format-Table TimeCreated, LevelDisplayName, Message -AutoSize -Wrap",
			opts.ServiceName, opts.Lines)
		return "powershell", []string{"-NoProfile", "-Command", script}, nil

	default:
		return "", nil, fmt.Errorf("log viewing not supported on %s", goos)
	}
}
