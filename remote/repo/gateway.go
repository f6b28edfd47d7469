package repo

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	gitplumbing "github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/pkgs/cache"
	"github.com/reviewos/kit/pkgs/logger"
	errors2 "github.com/reviewos/kit/util/errors"
)

// Gateway opens, creates and removes repositories under the configured
// repository root. Open handles are cached with TTL eviction.
type Gateway struct {
	mtx        sync.Mutex
	cfg        *config.AppConfig
	log        logger.Logger
	handles    *cache.Cache
	nameRegexp *regexp.Regexp
}

// NewGateway creates an instance of Gateway
func NewGateway(cfg *config.AppConfig) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		log:     cfg.G().Log.Module("repo-gateway"),
		handles: cache.NewCacheWithExpiringEntry(cfg.Repo.CacheSize),
	}
	if cfg.Repo.ValidateNames && cfg.Repo.NamePattern != "" {
		g.nameRegexp = regexp.MustCompile(cfg.Repo.NamePattern)
	}
	return g
}

// Path returns the directory a repository of the given name occupies
func (g *Gateway) Path(name string) string {
	return filepath.Join(g.cfg.GetRepoRoot(), name)
}

// ValidateName checks a repository name against the naming rules
func (g *Gateway) ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors2.Wrap(errors2.ErrInvalidName, "repository name is required")
	}
	if strings.Contains(name, "..") {
		return errors2.Wrap(errors2.ErrInvalidName, "repository name may not contain '..'")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors2.Wrap(errors2.ErrInvalidName, "repository name may not contain path separators")
	}
	if max := g.cfg.Repo.MaxNameLen; max > 0 && len(name) > max {
		return errors2.Wrap(errors2.ErrInvalidName, "repository name is longer than %d characters", max)
	}
	if g.nameRegexp != nil && !g.nameRegexp.MatchString(name) {
		return errors2.Wrap(errors2.ErrInvalidName, "repository name %q is not allowed", name)
	}
	return nil
}

// Exists checks whether a repository of the given name exists
func (g *Gateway) Exists(name string) bool {
	_, err := os.Stat(g.Path(name))
	return err == nil
}

// Open returns a handle to the named repository.
// Returns NotFound when the repository does not exist.
func (g *Gateway) Open(name string) (*Repo, error) {
	if err := g.ValidateName(name); err != nil {
		return nil, err
	}

	if v := g.handles.Get(name); v != nil {
		return v.(*Repo), nil
	}

	if !g.Exists(name) {
		return nil, errors2.Wrap(errors2.ErrNotFound, "repository %q does not exist", name)
	}

	r, err := GetWithGitModule(g.cfg.Node.GitBinPath, g.Path(name))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open repository")
	}

	ttl := time.Duration(g.cfg.Repo.CacheTTL) * time.Second
	g.handles.Add(name, r, time.Now().Add(ttl))

	return r, nil
}

// Create initializes a bare repository and writes the server's
// repository configuration. Duplicate creates fail with AlreadyExists.
func (g *Gateway) Create(name string) (*Repo, error) {
	if err := g.ValidateName(name); err != nil {
		return nil, err
	}

	g.mtx.Lock()
	defer g.mtx.Unlock()

	if g.Exists(name) {
		return nil, errors2.Wrap(errors2.ErrAlreadyExists, "repository %q already exists", name)
	}

	path := g.Path(name)
	r, err := git.PlainInit(path, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize repository")
	}

	if err = g.writeRepoConfig(r); err != nil {
		os.RemoveAll(path)
		return nil, err
	}

	g.log.Debug("Repository created", "Name", name)

	return g.Open(name)
}

// writeRepoConfig applies the server's standard repository settings
func (g *Gateway) writeRepoConfig(r *git.Repository) error {
	c, err := r.Config()
	if err != nil {
		return errors.Wrap(err, "failed to read repository config")
	}

	c.Raw.Section("http").SetOption("receivepack", "true")
	c.Raw.Section("receive").SetOption("denyCurrentBranch", "ignore")
	if g.cfg.Upload.AllowTipSHA1InWant {
		c.Raw.Section("uploadpack").SetOption("allowTipSHA1InWant", "true")
	}
	if g.cfg.Upload.AllowReachableSHA1InWant {
		c.Raw.Section("uploadpack").SetOption("allowReachableSHA1InWant", "true")
	}

	if err = r.SetConfig(c); err != nil {
		return errors.Wrap(err, "failed to write repository config")
	}
	return nil
}

// Delete removes the named repository and drops its cached handle
func (g *Gateway) Delete(name string) error {
	if err := g.ValidateName(name); err != nil {
		return err
	}

	g.mtx.Lock()
	defer g.mtx.Unlock()

	if !g.Exists(name) {
		return errors2.Wrap(errors2.ErrNotFound, "repository %q does not exist", name)
	}

	g.handles.Remove(name)
	if err := os.RemoveAll(g.Path(name)); err != nil {
		return errors.Wrap(err, "failed to delete repository")
	}

	g.log.Debug("Repository deleted", "Name", name)

	return nil
}

// List returns the name of every repository under the repository root
func (g *Gateway) List() ([]string, error) {
	entries, err := os.ReadDir(g.cfg.GetRepoRoot())
	if err != nil {
		return nil, errors.Wrap(err, "failed to read repository root")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ListBranches returns the branches of the named repository
func (g *Gateway) ListBranches(name string) ([]string, error) {
	r, err := g.Open(name)
	if err != nil {
		return nil, err
	}
	return r.ListBranches()
}

// GetHead returns the reference HEAD points at in the named repository
func (g *Gateway) GetHead(name string) (string, error) {
	r, err := g.Open(name)
	if err != nil {
		return "", err
	}
	ref, err := r.Reference(gitplumbing.HEAD, false)
	if err != nil {
		return "", errors.Wrap(err, "failed to read HEAD")
	}
	return ref.Target().String(), nil
}

// SetHead points HEAD of the named repository at ref
func (g *Gateway) SetHead(name, ref string) error {
	r, err := g.Open(name)
	if err != nil {
		return err
	}
	sym := gitplumbing.NewSymbolicReference(gitplumbing.HEAD, gitplumbing.ReferenceName(ref))
	return r.Storer.SetReference(sym)
}

// CleanupReferences packs loose refs and collects garbage in the
// named repository
func (g *Gateway) CleanupReferences(name string) error {
	r, err := g.Open(name)
	if err != nil {
		return err
	}
	return r.GC()
}
