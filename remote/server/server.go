package server

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/remote/advertise"
	"github.com/reviewos/kit/remote/changes"
	repo2 "github.com/reviewos/kit/remote/repo"
	errors2 "github.com/reviewos/kit/util/errors"
)

// URLPrefix is the path prefix git requests arrive under
const URLPrefix = "/git/"

var services = []struct {
	pattern string
	method  string
	handle  func(*RequestContext) error
}{
	{"(.*?)/git-upload-pack$", "POST", serveUploadPack},
	{"(.*?)/git-receive-pack$", "POST", serveReceivePack},
	{"(.*?)/info/refs$", "GET", getInfoRefs},
}

// Server serves git repositories over smart HTTP
type Server struct {
	cfg    *config.AppConfig
	log    logger.Logger
	wg     *sync.WaitGroup
	srv    *http.Server
	gw     *repo2.Gateway
	engine *changes.Engine
	adv    *advertise.Advertiser
}

// New creates an instance of Server
func New(cfg *config.AppConfig, gw *repo2.Gateway, engine *changes.Engine,
	adv *advertise.Advertiser) *Server {

	wg := &sync.WaitGroup{}
	wg.Add(1)

	return &Server{
		cfg:    cfg,
		log:    cfg.G().Log.Module("remote-server"),
		wg:     wg,
		gw:     gw,
		engine: engine,
		adv:    adv,
	}
}

// Start starts the http server
func (sv *Server) Start() error {
	s := http.NewServeMux()
	s.HandleFunc(URLPrefix, sv.gitRequestsHandler)

	sv.log.Info("Server has started", "Address", sv.cfg.Remote.Address)
	sv.srv = &http.Server{Addr: sv.cfg.Remote.Address, Handler: s}
	go func() {
		sv.srv.ListenAndServe()
		sv.wg.Done()
	}()

	return nil
}

// Handler returns the request handler, suitable for serving without a
// listener of its own
func (sv *Server) Handler() http.HandlerFunc {
	return sv.gitRequestsHandler
}

// gitRequestsHandler handles incoming http requests from a git client
func (sv *Server) gitRequestsHandler(w http.ResponseWriter, r *http.Request) {
	sv.log.Debug("New request", "Method", r.Method, "URL", r.URL.String())

	defer func() {
		if rcv, ok := recover().(error); ok {
			w.WriteHeader(http.StatusInternalServerError)
			sv.log.Error("Request error", "Err", rcv.Error())
		}
	}()

	// De-construct the URL to get the project name and operation
	pathParts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, URLPrefix), "/"), "/")
	if len(pathParts) < 2 {
		endNotFound(w)
		return
	}
	projectName := strings.TrimSuffix(pathParts[0], ".git")
	op := strings.Join(pathParts[1:], "/")

	username, err := sv.handleAuth(w, r, op)
	if err != nil {
		return
	}

	repo, err := sv.gw.Open(projectName)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors2.IsKind(err, errors2.ErrNotFound) {
			statusCode = http.StatusNotFound
		}
		w.WriteHeader(statusCode)
		sv.log.Debug("Failed to open target repository", "Name", projectName, "Code", statusCode)
		return
	}

	req := &RequestContext{
		W:           w,
		R:           r,
		Repo:        repo,
		Operation:   op,
		ServiceName: getService(r),
		Username:    username,
		server:      sv,
	}

	for _, s := range services {
		re := regexp.MustCompile(s.pattern)
		if m := re.FindStringSubmatch(r.URL.Path); m == nil {
			continue
		}

		if s.method != r.Method {
			writeMethodNotAllowed(w, r)
			return
		}

		if err := s.handle(req); err != nil {
			sv.log.Error("failed to handle request", "Req", s.pattern, "Err", err)
		}

		return
	}

	writeMethodNotAllowed(w, r)
}

// Wait blocks until the server terminates
func (sv *Server) Wait() {
	sv.wg.Wait()
}

// Shutdown shuts down the server
func (sv *Server) Shutdown(ctx context.Context) {
	sv.log.Info("Shutting down")
	if sv.srv != nil {
		sv.srv.Shutdown(ctx)
	}
}

// Stop stops the server
func (sv *Server) Stop() error {
	sv.Shutdown(context.Background())
	sv.log.Info("Shutdown")
	return nil
}
