package config

import (
	golog "log"
	"os"
	path "path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/olebedev/emitter"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/reviewos/kit/pkgs/logger"
)

var (
	// AppName is the name of the application
	AppName = "reviewos"

	// AppEnvPrefix is used as the prefix for environment variables
	AppEnvPrefix = strings.ToUpper(AppName)

	// DefaultRemoteAddress is the default HTTP git remote listening address
	DefaultRemoteAddress = "127.0.0.1:8976"

	// DefaultSSHPort is the default SSH listening port
	DefaultSSHPort = 29418

	// NoColorFormatting indicates that stdout/stderr output should have no color
	NoColorFormatting = false
)

// DefaultDataDir returns the path to the default data directory
func DefaultDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		home = os.TempDir()
	}
	return path.Join(home, "."+AppName)
}

// setDefaultViperConfig sets default config values
func setDefaultViperConfig() {
	viper.SetDefault("node.gitpath", "git")
	viper.SetDefault("remote.on", true)
	viper.SetDefault("remote.address", DefaultRemoteAddress)
	viper.SetDefault("remote.receivepack", true)
	viper.SetDefault("remote.uploadpack", true)
	viper.SetDefault("remote.pushtimeout", 300)
	viper.SetDefault("remote.fetchtimeout", 300)
	viper.SetDefault("ssh.on", true)
	viper.SetDefault("ssh.host", "0.0.0.0")
	viper.SetDefault("ssh.port", DefaultSSHPort)
	viper.SetDefault("ssh.idletimeout", 300)
	viper.SetDefault("ssh.readtimeout", 30)
	viper.SetDefault("repo.cachesize", 500)
	viper.SetDefault("repo.cachettl", 300)
	viper.SetDefault("repo.validatenames", true)
	viper.SetDefault("repo.namepattern", `^[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9]$`)
	viper.SetDefault("repo.maxnamelen", 255)
	viper.SetDefault("repo.gcinterval", 86400)
	viper.SetDefault("policy.allowcreates", true)
	viper.SetDefault("policy.allowdeletes", true)
	viper.SetDefault("policy.trunk", "trunk")
	viper.SetDefault("policy.minmsglen", 10)
	viper.SetDefault("upload.tipsha1inwant", true)
	viper.SetDefault("upload.reachablesha1inwant", true)
	viper.SetDefault("upload.maxrounds", 64)
}

// Configure prepares the application configuration from flags, environment
// variables and the config file, creating the data directory layout and the
// global logger on the way.
func Configure(cfg *AppConfig) {

	NoColorFormatting = viper.GetBool("no-colors")

	// Populate viper from environment variables
	viper.SetEnvPrefix(AppEnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Create app config and populate with default values
	var c = EmptyAppConfig()
	c.Node.Mode = ModeProd
	dataDir := viper.GetString("home")
	devMode := viper.GetBool("dev")

	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	// In development mode, use a separate data directory
	if devMode {
		c.Node.Mode = ModeDev
		dataDir = dataDir + "_dev"
	}

	// Create the data directory and sub directories
	os.MkdirAll(dataDir, 0700)
	os.MkdirAll(path.Join(dataDir, "data"), 0700)
	os.MkdirAll(path.Join(dataDir, "data", "repos"), 0700)

	// Set viper configuration
	setDefaultViperConfig()
	viper.SetConfigName(AppName)
	viper.AddConfigPath(dataDir)
	viper.AddConfigPath(".")

	// Create the config file if it does not exist
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			viper.SetConfigType("yaml")
			if err = viper.WriteConfigAs(path.Join(dataDir, AppName+".yml")); err != nil {
				golog.Fatalf("Failed to create config file: %s", err)
			}
		} else {
			golog.Fatalf("Failed to read config file: %s", err)
		}
	}

	// Read the loaded config into AppConfig
	if err := viper.Unmarshal(&c); err != nil {
		golog.Fatalf("Failed to unmarshal configuration file: %s", err)
	}

	// Set data and repository directories
	c.dataDir = dataDir
	c.repoDir = path.Join(dataDir, "data", "repos")
	if c.Repo.BasePath != "" {
		c.repoDir = c.Repo.BasePath
		os.MkdirAll(c.repoDir, 0700)
	}

	// Create logger with file rotation enabled
	logPath := path.Join(dataDir, "logs")
	os.MkdirAll(logPath, 0700)
	c.g.Log = logger.NewLogrusWithFileRotation(path.Join(logPath, "main.log"))

	if devMode {
		c.g.Log.SetToDebug()
	}

	// Apply a numeric log level when one is provided
	if lvl := viper.GetString("loglevel"); lvl != "" {
		if lvlNum, err := cast.ToUint32E(lvl); err == nil {
			c.g.Log.SetLevel(lvlNum)
		}
	}

	if viper.GetBool("no-log") {
		c.g.Log.SetToError()
	}

	c.g.Bus = emitter.New(0)

	*cfg = *c
}
