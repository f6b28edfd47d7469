package upload

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	gitplumbing "github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/pktline"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp"
	"github.com/go-git/go-git/v5/plumbing/revlist"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/pkg/errors"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/remote/advertise"
	repo2 "github.com/reviewos/kit/remote/repo"
)

// Handler serves one upload-pack exchange, wrapping the wire-protocol
// library with want-access checks and resource limits.
type Handler struct {
	cfg  *config.AppConfig
	log  logger.Logger
	repo *repo2.Repo
	adv  *advertise.Advertiser
}

// NewHandler creates an instance of Handler
func NewHandler(cfg *config.AppConfig, r *repo2.Repo, adv *advertise.Advertiser) *Handler {
	return &Handler{
		cfg:  cfg,
		log:  cfg.G().Log.Module("upload-handler"),
		repo: r,
		adv:  adv,
	}
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

// Handle decodes an upload-pack request from in, verifies every want
// against the read policy and the configured limits, and streams the
// response pack to out.
func (h *Handler) Handle(ctx context.Context, in io.Reader, out io.Writer) error {

	req := packp.NewUploadPackRequest()
	if err := req.Decode(in); err != nil {
		return errors.Wrap(err, "failed to decode upload request")
	}

	if err := h.decodeHaves(in, req); err != nil {
		return err
	}

	refs, err := h.adv.Refs(h.repo, advertise.ForUpload)
	if err != nil {
		return err
	}

	if err = h.checkWants(refs, req.Wants, req.Haves); err != nil {
		return err
	}

	ep, err := transport.NewEndpoint(h.repo.GetPath())
	if err != nil {
		return errors.Wrap(err, "failed to create endpoint")
	}

	loader := server.MapLoader{ep.String(): h.repo.GetStorer()}
	sess, err := server.NewServer(loader).NewUploadPackSession(ep, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create upload session")
	}

	resp, err := sess.UploadPack(ctx, req)
	if err != nil {
		return errors.Wrap(err, "upload-pack failed")
	}

	cw := &countingWriter{w: out}
	if err = resp.Encode(cw); err != nil {
		return errors.Wrap(err, "failed to encode upload response")
	}

	h.postUpload(len(req.Wants), cw.n)

	return nil
}

// decodeHaves reads the have lines that follow the want list, up to
// the closing done line. Each flush-separated batch is one negotiation
// round; haves the object database does not hold are dropped so they
// cannot poison the reachability walk.
func (h *Handler) decodeHaves(in io.Reader, req *packp.UploadPackRequest) error {

	maxRounds := h.cfg.Upload.MaxNegotiationRounds
	rounds := 1

	s := pktline.NewScanner(in)
	for s.Scan() {
		line := string(s.Bytes())
		switch {
		case len(line) == 0:
			rounds++
			if maxRounds > 0 && rounds > maxRounds {
				return fmt.Errorf("upload-pack: negotiation exceeded %d rounds", maxRounds)
			}
		case strings.HasPrefix(line, "have "):
			hash := gitplumbing.NewHash(strings.TrimSpace(strings.TrimPrefix(line, "have ")))
			if h.repo.GetStorer().HasEncodedObject(hash) != nil {
				h.log.Debug("Ignoring unknown have", "Repo", h.repo.GetName(), "Hash", hash.String())
				continue
			}
			req.Haves = append(req.Haves, hash)
		case strings.TrimSpace(line) == "done":
			return nil
		}
	}

	return s.Err()
}

// checkWants verifies access to every wanted object and enforces the
// upload limits. Failures surface as pack-protocol errors.
func (h *Handler) checkWants(refs map[string]string, wants, haves []gitplumbing.Hash) error {

	up := h.cfg.Upload

	if up.MaxRefs > 0 && len(wants) > up.MaxRefs {
		return fmt.Errorf("upload-pack: too many wanted refs (limit is %d)", up.MaxRefs)
	}

	tips := make(map[gitplumbing.Hash]bool, len(refs))
	var tipHashes []gitplumbing.Hash
	for _, hash := range refs {
		ph := gitplumbing.NewHash(hash)
		if !tips[ph] {
			tips[ph] = true
			tipHashes = append(tipHashes, ph)
		}
	}

	// Objects reachable from the advertised tips, computed once and
	// only when a want misses every tip
	var reachable map[gitplumbing.Hash]bool

	for _, want := range wants {
		if tips[want] && up.AllowTipSHA1InWant {
			continue
		}
		if !up.AllowReachableSHA1InWant {
			if tips[want] {
				continue
			}
			return fmt.Errorf("upload-pack: not our ref %s", want.String())
		}
		if reachable == nil {
			objs, err := revlist.Objects(h.repo.GetStorer(), tipHashes, nil)
			if err != nil {
				return errors.Wrap(err, "failed to walk advertised refs")
			}
			reachable = make(map[gitplumbing.Hash]bool, len(objs))
			for _, o := range objs {
				reachable[o] = true
			}
		}
		if !reachable[want] {
			return fmt.Errorf("upload-pack: not our ref %s", want.String())
		}
	}

	if up.MaxObjects > 0 || up.MaxPackObjects > 0 {
		objs, err := revlist.Objects(h.repo.GetStorer(), wants, haves)
		if err != nil {
			return errors.Wrap(err, "failed to estimate pack size")
		}
		if up.MaxObjects > 0 && len(objs) > up.MaxObjects {
			return fmt.Errorf("upload-pack: refusing to serve %d objects (limit is %d)", len(objs), up.MaxObjects)
		}
		if up.MaxPackObjects > 0 && len(objs) > up.MaxPackObjects {
			return fmt.Errorf("upload-pack: pack would carry %d objects (limit is %d)", len(objs), up.MaxPackObjects)
		}
	}

	return nil
}

// postUpload records pack statistics. Failures here never affect the
// completed upload.
func (h *Handler) postUpload(wants int, sent uint64) {
	h.log.Debug("Pack sent", "Repo", h.repo.GetName(), "Wants", wants, "Size", humanize.Bytes(sent))
}
