package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailward/web/internal/config"
	mwtls "github.com/mailward/web/internal/tls"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configValidateCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/mailward/web.yaml", "Path to configuration file")
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Backend: %s\n", cfg.Backend.BaseURL)
	fmt.Printf("  Poll interval: %s\n", cfg.Backend.PollInterval)
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)
	fmt.Printf("  TLS: %v\n", cfg.Server.TLS.Enabled)

	if cfg.Server.TLS.Enabled && !cfg.Server.TLS.ACME.Enabled {
		info, err := mwtls.GetCertificateInfo(cfg.Server.TLS.CertFile)
		if err != nil {
			return fmt.Errorf("failed to inspect certificate: %w", err)
		}
		fmt.Printf("  Certificate: %s (issued by %s, %d days left)\n", info.Subject, info.Issuer, info.DaysLeft)
	}
	if cfg.Server.TLS.ACME.Enabled {
		fmt.Printf("  ACME domains: %s\n", strings.Join(cfg.Server.TLS.ACME.Domains, ", "))
	}

	return nil
}
