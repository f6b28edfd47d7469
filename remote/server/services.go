package server

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/pkg/errors"

	"github.com/reviewos/kit/remote/advertise"
	"github.com/reviewos/kit/remote/push"
	repo2 "github.com/reviewos/kit/remote/repo"
	"github.com/reviewos/kit/remote/upload"
	errors2 "github.com/reviewos/kit/util/errors"
)

// RequestContext describes a request from a git client
type RequestContext struct {
	W           http.ResponseWriter
	R           *http.Request
	Repo        *repo2.Repo
	Operation   string
	ServiceName string
	Username    string
	server      *Server
}

// endNotFound sends a 404 response
func endNotFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("Not Found"))
}

// getService returns the requested service
func getService(r *http.Request) string {
	service := r.URL.Query().Get("service")
	return strings.ReplaceAll(service, "git-", "")
}

// hdrNoCache sets no-cache header fields on the given http response
func hdrNoCache(w http.ResponseWriter) {
	w.Header().Set("Expires", "Fri, 01 Jan 1980 00:00:00 GMT")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Cache-Control", "no-cache, max-age=0, must-revalidate")
}

// packetFlush returns packfile end bytes
func packetFlush() []byte {
	return []byte("0000")
}

// packetWrite returns a valid packfile line for the given string
func packetWrite(str string) []byte {
	s := strconv.FormatInt(int64(len(str)+4), 16)
	if len(s)%4 != 0 {
		s = strings.Repeat("0", 4-len(s)%4) + s
	}
	return []byte(s + str)
}

// writeMethodNotAllowed writes a response indicating that the request
// method is not allowed or expected.
func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if r.Proto == "HTTP/1.1" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte("Method Not Allowed"))
	} else {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Bad Request"))
	}
}

// guardedWriter serializes writes to the response writer and drops
// writes issued after the handler has given up on the request. The
// response writer must not be touched once the handler returns.
type guardedWriter struct {
	mtx    sync.Mutex
	w      io.Writer
	closed bool
}

func (g *guardedWriter) Write(p []byte) (int, error) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if g.closed {
		return 0, io.ErrClosedPipe
	}
	return g.w.Write(p)
}

// close blocks until any in-flight write has finished
func (g *guardedWriter) close() {
	g.mtx.Lock()
	g.closed = true
	g.mtx.Unlock()
}

// requestBody returns the request body, uncompressed when the client
// sent it gzipped
func requestBody(r *http.Request) (io.ReadCloser, error) {
	switch r.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(r.Body)
	default:
		return r.Body, nil
	}
}

// getInfoRefs handles an incoming request for a repository's references
func getInfoRefs(s *RequestContext) error {

	sv := s.server
	mode := advertise.ForUpload
	switch s.ServiceName {
	case "upload-pack":
		if !sv.cfg.Remote.UploadPack {
			endNotFound(s.W)
			return nil
		}
	case "receive-pack":
		if !sv.cfg.Remote.ReceivePack {
			endNotFound(s.W)
			return nil
		}
		mode = advertise.ForReceive
	default:
		endNotFound(s.W)
		return nil
	}

	refs, err := sv.adv.Refs(s.Repo, mode)
	if err != nil {
		s.W.WriteHeader(http.StatusInternalServerError)
		return err
	}

	adv := advertise.BuildAdvRefs(s.Repo, refs)
	if mode == advertise.ForReceive {
		adv.Capabilities.Add(capability.ReportStatus)
		adv.Capabilities.Add(capability.DeleteRefs)
		adv.Capabilities.Add(capability.OFSDelta)
	}

	hdrNoCache(s.W)
	s.W.Header().Set("Content-Type", fmt.Sprintf("application/x-git-%s-advertisement", s.ServiceName))
	s.W.WriteHeader(http.StatusOK)
	s.W.Write(packetWrite("# service=git-" + s.ServiceName + "\n"))
	s.W.Write(packetFlush())

	return adv.Encode(s.W)
}

// serveReceivePack handles a git push
func serveReceivePack(s *RequestContext) error {

	sv := s.server
	if !sv.cfg.Remote.ReceivePack {
		endNotFound(s.W)
		return nil
	}

	s.W.Header().Set("Content-Type", "application/x-git-receive-pack-result")
	s.W.Header().Set("X-Content-Type-Options", "nosniff")
	hdrNoCache(s.W)
	s.W.WriteHeader(http.StatusOK)

	body, err := requestBody(s.R)
	if err != nil {
		return errors.Wrap(err, "failed to read request body")
	}
	defer body.Close()

	h := push.NewHandler(sv.cfg, s.Repo, sv.engine, s.Username)

	w := &guardedWriter{w: s.W}
	done := make(chan error, 1)
	go func() { done <- h.HandleStream(body, w) }()

	ctx := s.R.Context()
	if d := sv.cfg.PushDeadline(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		w.close()
		return errors2.Wrap(errors2.ErrTimeout, "push did not complete in time")
	}
}

// serveUploadPack handles a git fetch
func serveUploadPack(s *RequestContext) error {

	sv := s.server
	if !sv.cfg.Remote.UploadPack {
		endNotFound(s.W)
		return nil
	}

	s.W.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	s.W.Header().Set("X-Content-Type-Options", "nosniff")
	hdrNoCache(s.W)
	s.W.WriteHeader(http.StatusOK)

	body, err := requestBody(s.R)
	if err != nil {
		return errors.Wrap(err, "failed to read request body")
	}
	defer body.Close()

	ctx := s.R.Context()
	if d := sv.cfg.FetchDeadline(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	h := upload.NewHandler(sv.cfg, s.Repo, sv.adv)
	if err := h.Handle(ctx, body, s.W); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors2.Wrap(errors2.ErrTimeout, "fetch did not complete in time")
		}
		return err
	}

	return nil
}
