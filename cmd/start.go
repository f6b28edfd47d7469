package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/node"
)

var interrupt = make(chan struct{})

func start() {

	log.Info("Starting server...", "DevMode", cfg.IsDev())

	n := node.NewNode(cfg)
	if err := n.OpenDB(); err != nil {
		log.Fatal("Failed to open database", "Err", err)
	}

	log.Info("Change store has been loaded", "DBDir", cfg.GetDBDir())

	if err := n.Start(); err != nil {
		log.Fatal("Failed to start server", "Err", err)
	}

	<-interrupt
	n.Stop()
}

func listenForInterrupt() {
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		close(interrupt)
	}()
}

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch the server to serve repositories",
	Long:  `Launch the server to serve repositories over HTTP and SSH.`,
	Run: func(cmd *cobra.Command, args []string) {
		log = cfg.G().Log.Module("main")
		listenForInterrupt()
		start()
	},
}

// setStartFlags registers the server flags on the given flag sets and binds
// them to their config keys
func setStartFlags(flagSets ...*pflag.FlagSet) {
	for _, fs := range flagSets {
		fs.String("remote.address", config.DefaultRemoteAddress, "Set the HTTP git listening address")
		fs.Int("ssh.port", config.DefaultSSHPort, "Set the SSH listening port")
		fs.String("repo.basepath", "", "Override the repository root directory")
		viper.BindPFlag("remote.address", fs.Lookup("remote.address"))
		viper.BindPFlag("ssh.port", fs.Lookup("ssh.port"))
		viper.BindPFlag("repo.basepath", fs.Lookup("repo.basepath"))
	}
}

func init() {
	setStartFlags(startCmd.Flags())
}
