package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tunnelmesh/metacoord/internal/svc"
)

type serviceFlags struct {
	configPath string
	name       string
	user       string
	force      bool
	follow     bool
	lines      int
}

func (f *serviceFlags) serviceConfig() *svc.ServiceConfig {
	cfg := svc.ServiceConfig{
		Name:       f.name,
		ConfigPath: f.configPath,
		UserName:   f.user,
	}.WithDefaults()
	return &cfg
}

func newServiceCmd() *cobra.Command {
	var flags serviceFlags

	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage metacoord as a system service",
		Long: `Install, control, and manage metacoord as a system service.

Supported platforms:
  - Linux (systemd)
  - macOS (launchd)
  - Windows (Service Control Manager)

Examples:
  sudo metacoord service install --config /etc/metacoord/metacoord.yaml
  sudo metacoord service start
  sudo metacoord service status
  sudo metacoord service logs --follow`,
	}
	serviceCmd.PersistentFlags().StringVarP(&flags.name, "name", "n", "", "Service name (default: metacoord)")

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install metacoord as a system service",
		Long: `Install metacoord as a system service that starts automatically at boot.

Requires administrator/root privileges.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			if err := svc.CheckPrivileges(); err != nil {
				return err
			}

			cfg := flags.serviceConfig()
			if _, err := os.Stat(cfg.ConfigPath); os.IsNotExist(err) {
				return fmt.Errorf("config file not found: %s\nCreate it with 'metacoord init -o %s' or pass --config", cfg.ConfigPath, cfg.ConfigPath)
			}

			log.Info().
				Str("name", cfg.Name).
				Str("config", cfg.ConfigPath).
				Msg("installing service")

			if err := svc.Install(cfg, flags.force); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Service %q installed successfully.\n", cfg.Name)
			_, _ = fmt.Fprintf(out, "\nTo start the service:\n  metacoord service start --name %s\n", cfg.Name)
			return nil
		},
	}
	installCmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	installCmd.Flags().StringVar(&flags.user, "user", "", "Run service as this user (Linux/macOS only)")
	installCmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Force reinstall if service already exists")
	serviceCmd.AddCommand(installCmd)

	serviceCmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the metacoord system service",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			if err := svc.CheckPrivileges(); err != nil {
				return err
			}

			cfg := flags.serviceConfig()
			log.Info().Str("name", cfg.Name).Msg("uninstalling service")
			if err := svc.Uninstall(cfg); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Service %q uninstalled successfully.\n", cfg.Name)
			return nil
		},
	})

	for _, action := range []struct{ name, short, done string }{
		{"start", "Start the metacoord service", "started"},
		{"stop", "Stop the metacoord service", "stopped"},
		{"restart", "Restart the metacoord service", "restarted"},
	} {
		serviceCmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				setupLogging()
				if err := svc.CheckPrivileges(); err != nil {
					return err
				}

				cfg := flags.serviceConfig()
				if err := svc.Control(cfg, action.name); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Service %q %s.\n", cfg.Name, action.done)
				return nil
			},
		})
	}

	serviceCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the metacoord service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flags.serviceConfig()
			out := cmd.OutOrStdout()

			status, err := svc.Status(cfg)
			_, _ = fmt.Fprintf(out, "Service: %s\n", cfg.Name)
			if err != nil {
				_, _ = fmt.Fprintf(out, "Status:  not installed or unknown\n")
				_, _ = fmt.Fprintf(out, "Error:   %v\n", err)
				return nil
			}
			_, _ = fmt.Fprintf(out, "Status:  %s\n", svc.StatusString(status))
			return nil
		},
	})

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "View metacoord service logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.ViewLogs(svc.LogOptions{
				ServiceName: flags.serviceConfig().Name,
				Follow:      flags.follow,
				Lines:       flags.lines,
			})
		},
	}
	logsCmd.Flags().BoolVarP(&flags.follow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVar(&flags.lines, "lines", 50, "Number of lines to show")
	serviceCmd.AddCommand(logsCmd)

	return serviceCmd
}
