package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nordmail/formsync/internal/config"
	"github.com/nordmail/formsync/internal/mailer"
)

var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Mailer account commands",
}

var mailerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check mailer API connectivity and credentials",
	RunE:  runMailerStatus,
}

var mailerSitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the sites available on the mailer account",
	RunE:  runMailerSites,
}

func init() {
	mailerCmd.AddCommand(mailerStatusCmd, mailerSitesCmd)
	rootCmd.AddCommand(mailerCmd)
}

func mailerConnection() (*mailer.Connection, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	rest := mailer.NewRest(mailer.Credentials{
		UserID:     cfg.Mailer.UserID,
		SecretKey:  cfg.Mailer.SecretKey,
		Realm:      cfg.Mailer.Realm,
		BaseURL:    cfg.Mailer.BaseURL,
		APIVersion: cfg.Mailer.APIVersion,
	})
	rest.SetTimeout(cfg.Mailer.Timeout)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mailer.NewConnection(rest, logger), nil
}

func runMailerStatus(cmd *cobra.Command, args []string) error {
	conn, err := mailerConnection()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if !conn.Status(ctx) {
		return fmt.Errorf("mailer API connection failed; check credentials")
	}

	fmt.Println("Mailer API connection OK")
	return nil
}

func runMailerSites(cmd *cobra.Command, args []string) error {
	conn, err := mailerConnection()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sites := conn.AccountSites(ctx)
	if len(sites) == 0 {
		return fmt.Errorf("no sites found; check credentials")
	}

	for _, site := range sites {
		if site.Retired() {
			continue
		}
		fmt.Printf("%s (welcome mail: %v, lists: %d)\n", site.Domain, site.Welcome, len(site.Lists))
		for _, list := range site.Lists {
			fmt.Printf("  list %d: %s\n", list.ID, list.Name)
		}
	}
	return nil
}
