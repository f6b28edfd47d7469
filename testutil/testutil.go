package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bitfield/script"
	"github.com/phayes/freeport"
	"github.com/spf13/viper"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/util"
)

var GitEnv = os.Environ()
var gitPath = "git"

// SetTestCfg prepares a config directory for tests
func SetTestCfg() (*config.AppConfig, error) {
	dataDir := filepath.Join(os.TempDir(), util.RandString(10))
	os.MkdirAll(dataDir, 0700)
	viper.Set("home", dataDir)

	var cfg = &config.AppConfig{}
	config.Configure(cfg)
	cfg.Node.Mode = config.ModeTest
	cfg.G().Log = logger.NewLogrusNoOp()

	return cfg, nil
}

// GetDB opens a test database under the config's data directory
func GetDB(cfg *config.AppConfig) *storage.Badger {
	db := storage.NewBadger()
	if err := db.Init(cfg.GetDBDir()); err != nil {
		panic(err)
	}
	return db
}

// Teardown removes a test config's data directory
func Teardown(cfg *config.AppConfig) {
	os.RemoveAll(cfg.DataDir())
}

func ExecGit(workDir string, args ...string) []byte {
	cmd := exec.Command(gitPath, args...)
	cmd.Dir = workDir
	cmd.Env = GitEnv
	bz, err := cmd.CombinedOutput()
	if err != nil {
		fmt.Println(string(bz))
		panic(err)
	}
	return bz
}

// InitTestRepo creates a non-bare git repository with a configured
// test identity and an initial branch named branch.
func InitTestRepo(path, branch string) {
	os.MkdirAll(path, 0700)
	ExecGit(path, "init", "-b", branch)
	ExecGit(path, "config", "user.name", "tester")
	ExecGit(path, "config", "user.email", "tester@example.test")
}

// InitBareTestRepo creates a bare git repository at path
func InitBareTestRepo(path, branch string) {
	os.MkdirAll(path, 0700)
	ExecGit(path, "init", "--bare", "-b", branch)
}

func AppendToFile(path, file string, data string) {
	dir, _ := filepath.Split(file)
	if dir != "" {
		os.MkdirAll(filepath.Join(path, dir), os.ModePerm)
	}
	_, _ = script.Echo(data).AppendFile(filepath.Join(path, file))
}

func ExecGitAdd(path, file string) []byte {
	return ExecGit(path, "add", file)
}

func ExecGitCommit(path, msg string) []byte {
	ExecGit(path, "add", ".")
	return ExecGit(path, "commit", "-m", msg)
}

func AppendCommit(path, file, fileData, commitMsg string) {
	AppendToFile(path, file, fileData)
	ExecGitCommit(path, commitMsg)
}

func AmendCommit(path, commitMsg string) {
	ExecGit(path, "add", ".")
	ExecGit(path, "commit", "--amend", "-m", commitMsg)
}

func CreateCheckoutBranch(path, branch string) {
	ExecGit(path, "checkout", "-b", branch)
}

func CheckoutBranch(path, branch string) {
	ExecGit(path, "checkout", branch)
}

func DeleteRef(path, name string) {
	ExecGit(path, "update-ref", "-d", name)
}

func GetRecentCommitHash(path, ref string) string {
	return strings.TrimSpace(string(ExecGit(path, "--no-pager", "log", ref, "-1", "--format=%H")))
}

func GetCommitMessage(path, ref string) string {
	return string(ExecGit(path, "--no-pager", "log", ref, "-1", "--format=%B"))
}

func ExecAnyCmd(workDir, name string, args ...string) []byte {
	cmd := exec.Command(name, args...)
	cmd.Dir = workDir
	bz, err := cmd.Output()
	if err != nil {
		panic(err)
	}
	return bz
}

func RandomAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", RandomPort())
}

// RandomPort returns a free TCP port
func RandomPort() int {
	port, err := freeport.GetFreePort()
	if err != nil {
		panic(err)
	}
	return port
}
