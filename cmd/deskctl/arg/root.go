package arg

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	serverToken string
)

var rootCmd = &cobra.Command{
	Use:   "deskctl",
	Short: "deskctl is the command line tool for the officedesk agent",
	Long: `deskctl talks to a running officedesk agent over its local HTTP API.
Use it to check in and out, read live notifications and inspect the connection.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", envOr("DESKCTL_URL", "http://127.0.0.1:7474"), "officedesk API address")
	rootCmd.PersistentFlags().StringVar(&serverToken, "token", os.Getenv("OFFICEDESK_SERVER_TOKEN"), "bearer token for the officedesk API")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
