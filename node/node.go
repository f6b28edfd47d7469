package node

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/keepers"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/remote/advertise"
	"github.com/reviewos/kit/remote/changes"
	repo2 "github.com/reviewos/kit/remote/repo"
	"github.com/reviewos/kit/remote/review"
	"github.com/reviewos/kit/remote/revops"
	"github.com/reviewos/kit/remote/server"
	"github.com/reviewos/kit/remote/sshd"
	"github.com/reviewos/kit/storage"
)

// Node assembles the server's components and manages their lifecycle
type Node struct {
	cfg     *config.AppConfig
	log     logger.Logger
	db      *storage.Badger
	gateway *repo2.Gateway
	engine  *changes.Engine
	adv     *advertise.Advertiser
	revOps  *revops.Ops
	review  *review.Surface
	remote  *server.Server
	ssh     *sshd.Server
	closed  chan struct{}
}

// NewNode creates an instance of Node
func NewNode(cfg *config.AppConfig) *Node {
	return &Node{
		cfg:    cfg,
		log:    cfg.G().Log.Module("node"),
		closed: make(chan struct{}),
	}
}

// OpenDB opens the change store database
func (n *Node) OpenDB() error {
	db := storage.NewBadger()
	if err := db.Init(n.cfg.GetDBDir()); err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	n.db = db
	return nil
}

// DB returns the change store database. Valid only after OpenDB.
func (n *Node) DB() *storage.Badger {
	return n.db
}

// Gateway returns the repository gateway. Valid only after Start.
func (n *Node) Gateway() *repo2.Gateway {
	return n.gateway
}

// RevOps returns the revision operations service. Valid only after Start.
func (n *Node) RevOps() *revops.Ops {
	return n.revOps
}

// Review returns the review surface. Valid only after Start.
func (n *Node) Review() *review.Surface {
	return n.review
}

// Start wires the components and starts the configured transports
func (n *Node) Start() error {

	n.gateway = repo2.NewGateway(n.cfg)
	n.engine = changes.NewEngine(n.cfg, n.db)
	n.adv = advertise.NewAdvertiser(n.cfg, keepers.NewChangeKeeper(n.db.NewTx(true, true)))

	projects := keepers.NewProjectKeeper(n.db.NewTx(true, true))
	accounts := keepers.NewAccountKeeper(n.db.NewTx(true, true))
	n.revOps = revops.NewOps(n.cfg, n.engine, n.gateway, projects)
	n.review = review.NewSurface(n.cfg, n.engine.Store(), accounts, projects)

	if n.cfg.Remote.On {
		n.remote = server.New(n.cfg, n.gateway, n.engine, n.adv)
		if err := n.remote.Start(); err != nil {
			return errors.Wrap(err, "failed to start http server")
		}
	}

	if n.cfg.SSH.On {
		n.ssh = sshd.New(n.cfg, n.gateway, n.engine, n.adv)
		if err := n.ssh.Start(); err != nil {
			return errors.Wrap(err, "failed to start ssh server")
		}
	}

	if n.cfg.Repo.GCInterval > 0 {
		go n.gcLoop(time.Duration(n.cfg.Repo.GCInterval) * time.Second)
	}

	return nil
}

// gcLoop sweeps every repository at the given interval, packing loose
// refs and collecting garbage
func (n *Node) gcLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-n.closed:
			return
		case <-t.C:
		}
		names, err := n.gateway.List()
		if err != nil {
			n.log.Error("Failed to list repositories for gc", "Err", err.Error())
			continue
		}
		for _, name := range names {
			if err := n.gateway.CleanupReferences(name); err != nil {
				n.log.Error("Repository gc failed", "Name", name, "Err", err.Error())
			}
		}
	}
}

// Stop stops the transports and closes the database
func (n *Node) Stop() {
	n.log.Info("Stopping...")

	close(n.closed)
	if n.ssh != nil {
		n.ssh.Stop()
	}
	if n.remote != nil {
		n.remote.Shutdown(context.Background())
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.log.Error("Failed to close database", "Err", err.Error())
		}
	}

	n.log.Info("Stopped")
}
