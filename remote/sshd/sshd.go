package sshd

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io/ioutil"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/remote/advertise"
	"github.com/reviewos/kit/remote/changes"
	"github.com/reviewos/kit/remote/push"
	repo2 "github.com/reviewos/kit/remote/repo"
	"github.com/reviewos/kit/remote/upload"
	errors2 "github.com/reviewos/kit/util/errors"
)

// AnonymousUser is the username unauthenticated clients must present
const AnonymousUser = "anonymous"

// cmdRegexp captures the git service and quoted project name of an
// exec request. A trailing .git on the project name is accepted.
var cmdRegexp = regexp.MustCompile(`^(git-(?:receive-pack|upload-pack))\s+'?/?([^']+?)'?$`)

// Server serves git repositories over SSH
type Server struct {
	cfg      *config.AppConfig
	log      logger.Logger
	wg       *sync.WaitGroup
	gw       *repo2.Gateway
	engine   *changes.Engine
	adv      *advertise.Advertiser
	sshCfg   *ssh.ServerConfig
	listener net.Listener
	mtx      *sync.Mutex
	stopped  bool
}

// New creates an instance of Server
func New(cfg *config.AppConfig, gw *repo2.Gateway, engine *changes.Engine,
	adv *advertise.Advertiser) *Server {

	wg := &sync.WaitGroup{}
	wg.Add(1)

	return &Server{
		cfg:    cfg,
		log:    cfg.G().Log.Module("ssh-server"),
		wg:     wg,
		gw:     gw,
		engine: engine,
		adv:    adv,
		mtx:    &sync.Mutex{},
	}
}

// Addr returns the listener's address. Valid only after Start.
func (sv *Server) Addr() string {
	if sv.listener == nil {
		return ""
	}
	return sv.listener.Addr().String()
}

// Start loads the host key, binds the listener and begins accepting
// connections
func (sv *Server) Start() error {

	signer, err := loadOrCreateHostKey(sv.cfg.GetHostKeyPath())
	if err != nil {
		return errors.Wrap(err, "failed to load host key")
	}

	sv.sshCfg = &ssh.ServerConfig{
		PasswordCallback:  sv.checkPassword,
		PublicKeyCallback: sv.checkPublicKey,
	}
	sv.sshCfg.AddHostKey(signer)

	addr := fmt.Sprintf("%s:%d", sv.cfg.SSH.Host, sv.cfg.SSH.Port)
	sv.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "failed to bind ssh listener")
	}

	sv.log.Info("Server has started", "Address", sv.listener.Addr().String())

	go sv.acceptLoop()

	return nil
}

func (sv *Server) acceptLoop() {
	defer sv.wg.Done()
	for {
		conn, err := sv.listener.Accept()
		if err != nil {
			sv.mtx.Lock()
			stopped := sv.stopped
			sv.mtx.Unlock()
			if stopped {
				return
			}
			sv.log.Error("Failed to accept connection", "Err", err.Error())
			continue
		}
		go sv.handleConn(conn)
	}
}

// checkPassword authenticates a password attempt against the user
// table. The anonymous username passes only when anonymous reads are
// enabled; the session is then restricted to upload-pack.
func (sv *Server) checkPassword(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	user := meta.User()

	if user == AnonymousUser {
		if !sv.cfg.Policy.AnonymousRead {
			return nil, fmt.Errorf("anonymous access is disabled")
		}
		return &ssh.Permissions{Extensions: map[string]string{"anonymous": "true"}}, nil
	}

	if pw, ok := sv.cfg.Remote.Users[user]; ok && pw == string(password) {
		return &ssh.Permissions{Extensions: map[string]string{}}, nil
	}

	return nil, fmt.Errorf("authentication failed for %q", user)
}

// checkPublicKey authenticates a public key attempt against the
// authorized keys file
func (sv *Server) checkPublicKey(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {

	bz, err := ioutil.ReadFile(sv.cfg.GetAuthorizedKeysPath())
	if err != nil {
		return nil, fmt.Errorf("no authorized keys")
	}

	marshaled := key.Marshal()
	for len(bz) > 0 {
		authorized, _, _, rest, err := ssh.ParseAuthorizedKey(bz)
		bz = rest
		if err != nil {
			continue
		}
		if string(authorized.Marshal()) == string(marshaled) {
			return &ssh.Permissions{Extensions: map[string]string{}}, nil
		}
	}

	return nil, fmt.Errorf("unknown public key for %q", meta.User())
}

func (sv *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	tc := &timeoutConn{
		Conn:        conn,
		readTimeout: time.Duration(sv.cfg.SSH.ReadTimeout) * time.Second,
		idleTimeout: time.Duration(sv.cfg.SSH.IdleTimeout) * time.Second,
	}

	sconn, chans, reqs, err := ssh.NewServerConn(tc, sv.sshCfg)
	if err != nil {
		sv.log.Debug("SSH handshake failed", "Err", err.Error())
		return
	}
	defer sconn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, chReqs, err := newChan.Accept()
		if err != nil {
			continue
		}
		go sv.handleSession(sconn, ch, chReqs)
	}
}

// handleSession processes requests of one session channel. Only exec
// requests carrying a git command are served.
func (sv *Server) handleSession(sconn *ssh.ServerConn, ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			cmd := parseExecPayload(req.Payload)
			req.Reply(true, nil)
			sv.exitSession(ch, sv.runCommand(sconn, ch, cmd))
			return
		case "env":
			req.Reply(true, nil)
		default:
			req.Reply(false, nil)
		}
	}
}

// exitSession reports the command outcome to the client. Failures are
// written as a fatal line on the error channel and exit status 1.
func (sv *Server) exitSession(ch ssh.Channel, err error) {
	status := uint32(0)
	if err != nil {
		status = 1
		fmt.Fprintf(ch.Stderr(), "fatal: %s\n", err.Error())
	}
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, status)
	ch.SendRequest("exit-status", false, payload)
}

// runCommand dispatches a git exec command to the matching service
func (sv *Server) runCommand(sconn *ssh.ServerConn, ch ssh.Channel, cmd string) error {

	m := cmdRegexp.FindStringSubmatch(strings.TrimSpace(cmd))
	if m == nil {
		return fmt.Errorf("'%s' is not a valid Git command", cmd)
	}
	service := m[1]
	project := strings.TrimSuffix(m[2], ".git")

	anonymous := sconn.Permissions != nil && sconn.Permissions.Extensions["anonymous"] == "true"
	if service == "git-receive-pack" {
		if !sv.cfg.Remote.ReceivePack {
			return fmt.Errorf("receive-pack is disabled")
		}
		if anonymous {
			return fmt.Errorf("anonymous users cannot push")
		}
	}
	if service == "git-upload-pack" && !sv.cfg.Remote.UploadPack {
		return fmt.Errorf("upload-pack is disabled")
	}

	repo, err := sv.gw.Open(project)
	if err != nil {
		if errors2.IsKind(err, errors2.ErrNotFound) {
			return fmt.Errorf("repository %q not found", project)
		}
		return err
	}

	sv.log.Debug("Serving git command", "Service", service, "Project", project, "User", sconn.User())

	switch service {
	case "git-receive-pack":
		return sv.serveReceivePack(ch, repo, sconn.User())
	default:
		return sv.serveUploadPack(ch, repo)
	}
}

// serveReceivePack advertises the receive ref set and hands the stream
// to the push handler
func (sv *Server) serveReceivePack(ch ssh.Channel, repo *repo2.Repo, username string) error {

	refs, err := sv.adv.Refs(repo, advertise.ForReceive)
	if err != nil {
		return err
	}

	adv := advertise.BuildAdvRefs(repo, refs)
	adv.Capabilities.Add(capability.ReportStatus)
	adv.Capabilities.Add(capability.DeleteRefs)
	adv.Capabilities.Add(capability.OFSDelta)
	if err = adv.Encode(ch); err != nil {
		return errors.Wrap(err, "failed to write advertisement")
	}

	h := push.NewHandler(sv.cfg, repo, sv.engine, username)

	done := make(chan error, 1)
	go func() { done <- h.HandleStream(ch, ch) }()

	return sv.await(done, sv.cfg.PushDeadline(), "push")
}

// serveUploadPack advertises the upload ref set and hands the stream to
// the upload handler
func (sv *Server) serveUploadPack(ch ssh.Channel, repo *repo2.Repo) error {

	refs, err := sv.adv.Refs(repo, advertise.ForUpload)
	if err != nil {
		return err
	}

	if err = advertise.BuildAdvRefs(repo, refs).Encode(ch); err != nil {
		return errors.Wrap(err, "failed to write advertisement")
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if d := sv.cfg.FetchDeadline(); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	h := upload.NewHandler(sv.cfg, repo, sv.adv)

	done := make(chan error, 1)
	go func() { done <- h.Handle(ctx, ch, ch) }()

	return sv.await(done, sv.cfg.FetchDeadline(), "fetch")
}

// await waits for the operation or its deadline, whichever comes first
func (sv *Server) await(done <-chan error, deadline time.Duration, op string) error {
	if deadline <= 0 {
		return <-done
	}
	select {
	case err := <-done:
		return err
	case <-time.After(deadline):
		return errors2.Wrap(errors2.ErrTimeout, "%s did not complete in time", op)
	}
}

// Wait blocks until the server terminates
func (sv *Server) Wait() {
	sv.wg.Wait()
}

// Stop stops the server
func (sv *Server) Stop() error {
	sv.mtx.Lock()
	sv.stopped = true
	sv.mtx.Unlock()
	if sv.listener != nil {
		sv.listener.Close()
	}
	sv.log.Info("Shutdown")
	return nil
}

// parseExecPayload extracts the command string of an exec request
func parseExecPayload(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(payload)
	if uint32(len(payload)-4) < n {
		return ""
	}
	return string(payload[4 : 4+n])
}

// loadOrCreateHostKey returns the host key signer, generating and
// persisting an ed25519 key on first use
func loadOrCreateHostKey(path string) (ssh.Signer, error) {

	if bz, err := ioutil.ReadFile(path); err == nil {
		signer, err := ssh.ParsePrivateKey(bz)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse host key")
		}
		return signer, nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate host key")
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode host key")
	}

	pemBz := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err = ioutil.WriteFile(path, pemBz, 0600); err != nil {
		return nil, errors.Wrap(err, "failed to persist host key")
	}

	return ssh.NewSignerFromKey(priv)
}

// timeoutConn applies the configured read timeout to every read
type timeoutConn struct {
	net.Conn
	readTimeout time.Duration
	idleTimeout time.Duration
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	t := c.readTimeout
	if c.idleTimeout > 0 && (t <= 0 || c.idleTimeout < t) {
		t = c.idleTimeout
	}
	if t > 0 {
		c.Conn.SetReadDeadline(time.Now().Add(t))
	}
	return c.Conn.Read(p)
}
