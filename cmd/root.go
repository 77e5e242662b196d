package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/ValentinKolb/dDS/cmd/admin"
	"github.com/ValentinKolb/dDS/cmd/worker"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dds",
		Short: "derived data service",
		Long: fmt.Sprintf(`dDS (v%s)

A derivation engine for content-addressed source control: computes and caches
derived data (manifest digests, history summaries, ...) per commit, with
cross-process claims so every value is computed at most once.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dDS",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dDS v%s\n", Version)
		},
	}

	// upgradeCmd represents the upgrade command
	upgradeCmd = &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade dDS to the latest version",
		Long:  `Upgrade dDS to the latest version by downloading and running the installation script.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Upgrading dDS to the latest version...")

			// Get installation path flag
			installPath, _ := cmd.Flags().GetString("path")

			scriptURL := "https://raw.githubusercontent.com/ValentinKolb/dDS/refs/heads/main/install.sh"

			if runtime.GOOS == "windows" {
				fmt.Println("Windows is not supported.")
				os.Exit(1)
			}

			// Base command to download and execute the script
			cmdStr := fmt.Sprintf("curl -s %s | bash", scriptURL)
			if installPath != "" {
				cmdStr += fmt.Sprintf(" -- --path=%s", installPath)
			}

			// Create and run the command
			shellCmd := exec.Command("bash", "-c", cmdStr)
			shellCmd.Stdout = os.Stdout
			shellCmd.Stderr = os.Stderr

			fmt.Println("Executing:", cmdStr)
			if err := shellCmd.Run(); err != nil {
				fmt.Printf("Error upgrading dDS: %v\n", err)
				os.Exit(1)
			}

			fmt.Println("dDS has been successfully upgraded!")
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(worker.WorkerCmd)
	RootCmd.AddCommand(admin.AdminCommands)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(upgradeCmd)

	// Add Flags for upgrade command
	upgradeCmd.Flags().String("path", "", "Installation path for the upgraded version")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
