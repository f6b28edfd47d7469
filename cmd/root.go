package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/util/colorfmt"
)

var (
	// BuildVersion is the build version set by goreleaser
	BuildVersion = ""

	// BuildCommit is the git hash of the build. It is set by goreleaser
	BuildCommit = ""
)

var (
	log logger.Logger

	// cfg is the application config
	cfg = &config.AppConfig{}
)

// Execute runs the root command
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorfmt.RedString("Error: %s", err.Error()))
		os.Exit(1)
	}
}

// RootCmd represents the base command when called without any sub-commands
var RootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Reviewos is a self-hosted git code review server",
	Long:  ``,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.CalledAs() != cmd.Root().Name() {
			config.Configure(cfg)
			log = cfg.G().Log
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		version, _ := cmd.Flags().GetBool("version")
		if version {
			fmt.Println("Version:", BuildVersion)
			fmt.Println("Build:", BuildCommit)
			return
		}
		_ = cmd.Help()
	},
}

func init() {
	RootCmd.Flags().SortFlags = false
	RootCmd.AddCommand(startCmd)

	RootCmd.PersistentFlags().String("home", config.DefaultDataDir(), "Set the path to the home directory")
	RootCmd.PersistentFlags().String("gitpath", "git", "Set path to git executable")
	RootCmd.PersistentFlags().Bool("dev", false, "Enables development mode")
	RootCmd.PersistentFlags().Bool("no-log", false, "Disables loggers")
	RootCmd.PersistentFlags().Bool("no-colors", false, "Disables output colors")
	RootCmd.PersistentFlags().String("loglevel", "", "Set the numeric log level")
	RootCmd.Flags().BoolP("version", "v", false, "Print version information")

	_ = viper.BindPFlag("home", RootCmd.PersistentFlags().Lookup("home"))
	_ = viper.BindPFlag("loglevel", RootCmd.PersistentFlags().Lookup("loglevel"))
	_ = viper.BindPFlag("node.gitpath", RootCmd.PersistentFlags().Lookup("gitpath"))
	_ = viper.BindPFlag("dev", RootCmd.PersistentFlags().Lookup("dev"))
	_ = viper.BindPFlag("no-log", RootCmd.PersistentFlags().Lookup("no-log"))
	_ = viper.BindPFlag("no-colors", RootCmd.PersistentFlags().Lookup("no-colors"))
}
