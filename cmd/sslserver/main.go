package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/lk2023060901/sslserver-go/pkg/version"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "sslserver",
		Short: "TLS terminating TCP server",
		Long: `sslserver accepts TCP connections, performs a TLS handshake on each and
echoes every received message back to its sender.

Type 'stop' to stop the server or 'restart' to restart it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (env SSLSERVER_CONFIG_FILE_PATH, default ./config.yaml)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sslserver", version.Get())
		},
	}
}
