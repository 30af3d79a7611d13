// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

// Global flags
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tyto",
	Short: "Tyto - user-space IPv4 stack ingress daemon",
	Long: `Tyto is a minimal user-space IPv4 stack: it brings up link-layer
devices (AF_PACKET capture, TUN, pcap replay, in-memory channel), binds
configured IPv4 interfaces to them, and runs the network-layer ingress
path: header validation, checksum verification, fragment rejection, and
destination address matching against the local interfaces.

Accepted datagrams are handed to registered transport handlers; everything
else is counted, logged, and dropped.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/tyto/config.yml",
		"config file path")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(validateCmd)
}
