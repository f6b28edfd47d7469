package config

import (
	"path/filepath"
	"time"

	"github.com/reviewos/kit/pkgs/logger"
)

const (
	// ModeProd refers to production mode
	ModeProd = iota + 1
	// ModeDev refers to development mode
	ModeDev
	// ModeTest refers to test mode
	ModeTest
)

// NodeConfig represents the node's general configuration
type NodeConfig struct {

	// Mode determines the current environment type
	Mode int `json:"mode" mapstructure:"mode"`

	// GitBinPath is the path to the git executable
	GitBinPath string `json:"gitpath" mapstructure:"gitpath"`
}

// RemoteConfig describes the HTTP git remote configuration
type RemoteConfig struct {

	// On enables the smart-HTTP surface
	On bool `json:"on" mapstructure:"on"`

	// Address is the HTTP listening address
	Address string `json:"address" mapstructure:"address"`

	// ReceivePack enables git-receive-pack
	ReceivePack bool `json:"receivepack" mapstructure:"receivepack"`

	// UploadPack enables git-upload-pack
	UploadPack bool `json:"uploadpack" mapstructure:"uploadpack"`

	// PushTimeout is the overall deadline of a push, in seconds
	PushTimeout int `json:"pushtimeout" mapstructure:"pushtimeout"`

	// FetchTimeout is the overall deadline of a fetch, in seconds
	FetchTimeout int `json:"fetchtimeout" mapstructure:"fetchtimeout"`

	// Users maps usernames to passwords for basic and SSH password auth.
	// Account providers beyond this static table are external.
	Users map[string]string `json:"users" mapstructure:"users"`
}

// SSHConfig describes the SSH front configuration
type SSHConfig struct {

	// On enables the SSH surface
	On bool `json:"on" mapstructure:"on"`

	// Host is the listening host
	Host string `json:"host" mapstructure:"host"`

	// Port is the listening port (1024-65535)
	Port int `json:"port" mapstructure:"port"`

	// HostKeyPath is the path of the server host key; generated when absent
	HostKeyPath string `json:"hostkey" mapstructure:"hostkey"`

	// IdleTimeout is the session idle timeout, in seconds
	IdleTimeout int `json:"idletimeout" mapstructure:"idletimeout"`

	// ReadTimeout is the per-read timeout, in seconds
	ReadTimeout int `json:"readtimeout" mapstructure:"readtimeout"`
}

// RepoConfig describes repository storage configuration
type RepoConfig struct {

	// BasePath overrides the default repository root directory
	BasePath string `json:"basepath" mapstructure:"basepath"`

	// CacheSize is the maximum number of cached repository handles
	CacheSize int `json:"cachesize" mapstructure:"cachesize"`

	// CacheTTL is the handle cache TTL, in seconds
	CacheTTL int `json:"cachettl" mapstructure:"cachettl"`

	// ValidateNames toggles repository name validation
	ValidateNames bool `json:"validatenames" mapstructure:"validatenames"`

	// NamePattern is the allowed repository name pattern
	NamePattern string `json:"namepattern" mapstructure:"namepattern"`

	// MaxNameLen is the maximum repository name length
	MaxNameLen int `json:"maxnamelen" mapstructure:"maxnamelen"`

	// GCInterval is the seconds between repository gc sweeps. Zero disables.
	GCInterval int `json:"gcinterval" mapstructure:"gcinterval"`
}

// PolicyConfig describes the receive-side policy configuration
type PolicyConfig struct {

	// AllowCreates permits ref creation on direct push
	AllowCreates bool `json:"allowcreates" mapstructure:"allowcreates"`

	// AllowDeletes permits ref deletion on direct push
	AllowDeletes bool `json:"allowdeletes" mapstructure:"allowdeletes"`

	// AllowNonFastForwards permits non-fast-forward direct pushes
	AllowNonFastForwards bool `json:"allownonfastforwards" mapstructure:"allownonfastforwards"`

	// AllowDirectPush permits direct pushes to branches other than trunk
	AllowDirectPush bool `json:"allowdirectpush" mapstructure:"allowdirectpush"`

	// TrunkBranch is the branch direct pushes are steered to
	TrunkBranch string `json:"trunk" mapstructure:"trunk"`

	// ProtectedPrefixes are additional ref prefixes closed to direct push
	ProtectedPrefixes []string `json:"protectedprefixes" mapstructure:"protectedprefixes"`

	// AutoChangeID adopts a generated Change-Id for magic pushes missing one
	AutoChangeID bool `json:"autoid" mapstructure:"autoid"`

	// MinCommitMsgLen is the minimum commit message length on direct push
	MinCommitMsgLen int `json:"minmsglen" mapstructure:"minmsglen"`

	// AnonymousRead permits unauthenticated fetches
	AnonymousRead bool `json:"anonymousread" mapstructure:"anonymousread"`
}

// UploadConfig describes the upload-side policy configuration
type UploadConfig struct {

	// AllowTipSHA1InWant permits wants naming hidden ref tips
	AllowTipSHA1InWant bool `json:"tipsha1inwant" mapstructure:"tipsha1inwant"`

	// AllowReachableSHA1InWant permits wants naming any reachable object
	AllowReachableSHA1InWant bool `json:"reachablesha1inwant" mapstructure:"reachablesha1inwant"`

	// MaxObjects caps the number of objects servable in one upload. 0 is unlimited.
	MaxObjects int `json:"maxobjects" mapstructure:"maxobjects"`

	// MaxRefs caps the number of wanted refs in one upload. 0 is unlimited.
	MaxRefs int `json:"maxrefs" mapstructure:"maxrefs"`

	// MaxNegotiationRounds caps have/ack rounds before aborting
	MaxNegotiationRounds int `json:"maxrounds" mapstructure:"maxrounds"`

	// MaxPackObjects caps the estimated pack size in objects. 0 is unlimited.
	MaxPackObjects int `json:"maxpackobjects" mapstructure:"maxpackobjects"`
}

// AppConfig represents the application's configuration
type AppConfig struct {

	// Node holds general node configuration
	Node *NodeConfig `json:"node" mapstructure:"node"`

	// Remote holds HTTP git remote configuration
	Remote *RemoteConfig `json:"remote" mapstructure:"remote"`

	// SSH holds SSH front configuration
	SSH *SSHConfig `json:"ssh" mapstructure:"ssh"`

	// Repo holds repository storage configuration
	Repo *RepoConfig `json:"repo" mapstructure:"repo"`

	// Policy holds receive policy configuration
	Policy *PolicyConfig `json:"policy" mapstructure:"policy"`

	// Upload holds upload policy configuration
	Upload *UploadConfig `json:"upload" mapstructure:"upload"`

	// dataDir is where the server's config and data are stored
	dataDir string

	// repoDir is where repositories are stored
	repoDir string

	// g holds references to shared global objects
	g *Globals
}

// EmptyAppConfig returns an empty config object
func EmptyAppConfig() *AppConfig {
	return &AppConfig{
		Node:   &NodeConfig{},
		Remote: &RemoteConfig{},
		SSH:    &SSHConfig{},
		Repo:   &RepoConfig{},
		Policy: &PolicyConfig{},
		Upload: &UploadConfig{},
		g: &Globals{
			Log: logger.NewLogrus(nil),
		},
	}
}

// DataDir returns the application's data directory
func (c *AppConfig) DataDir() string {
	return c.dataDir
}

// SetDataDir sets the application's data directory
func (c *AppConfig) SetDataDir(d string) {
	c.dataDir = d
}

// GetRepoRoot returns the repository root directory
func (c *AppConfig) GetRepoRoot() string {
	return c.repoDir
}

// SetRepoRoot sets the repository root directory
func (c *AppConfig) SetRepoRoot(dir string) {
	c.repoDir = dir
}

// GetDBDir returns the directory where database files are stored
func (c *AppConfig) GetDBDir() string {
	return filepath.Join(c.dataDir, "data", "store.db")
}

// GetHostKeyPath returns the SSH host key path
func (c *AppConfig) GetHostKeyPath() string {
	if c.SSH.HostKeyPath != "" {
		return c.SSH.HostKeyPath
	}
	return filepath.Join(c.dataDir, "ssh_host_key")
}

// GetAuthorizedKeysPath returns the path of the SSH authorized keys file
func (c *AppConfig) GetAuthorizedKeysPath() string {
	return filepath.Join(c.dataDir, "authorized_keys")
}

// PushDeadline returns the configured push deadline
func (c *AppConfig) PushDeadline() time.Duration {
	return time.Duration(c.Remote.PushTimeout) * time.Second
}

// FetchDeadline returns the configured fetch deadline
func (c *AppConfig) FetchDeadline() time.Duration {
	return time.Duration(c.Remote.FetchTimeout) * time.Second
}

// IsDev checks whether the current environment is 'development'
func (c *AppConfig) IsDev() bool {
	return c.Node.Mode == ModeDev
}

// IsTest checks whether the current environment is 'test'
func (c *AppConfig) IsTest() bool {
	return c.Node.Mode == ModeTest
}
