package push

import (
	"io/ioutil"
	"os"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/packfile"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp"
	"github.com/go-git/go-git/v5/storage"
	"github.com/pkg/errors"
)

// PackedReferenceObject represents a reference update in a push
type PackedReferenceObject struct {
	OldHash string
	NewHash string
}

// PackedReferences is a collection of reference updates keyed by name
type PackedReferences map[string]*PackedReferenceObject

// Names returns the names of the references
func (p *PackedReferences) Names() (refs []string) {
	for name := range *p {
		refs = append(refs, name)
	}
	return
}

// PackObject describes one object of a received packfile
type PackObject struct {
	Type plumbing.ObjectType
	Hash plumbing.Hash
}

// ObjectObserver implements packfile.Observer. It records the objects
// of a packfile as the parser stores them.
type ObjectObserver struct {
	Objects   []*PackObject
	totalSize int64
}

func (o *ObjectObserver) OnHeader(uint32) error        { return nil }
func (o *ObjectObserver) OnFooter(plumbing.Hash) error { return nil }

// OnInflatedObjectHeader implements packfile.Observer.
func (o *ObjectObserver) OnInflatedObjectHeader(t plumbing.ObjectType, objSize int64, _ int64) error {
	o.Objects = append(o.Objects, &PackObject{Type: t})
	o.totalSize = o.totalSize + objSize
	return nil
}

// OnInflatedObjectContent implements packfile.Observer.
func (o *ObjectObserver) OnInflatedObjectContent(h plumbing.Hash, _ int64, _ uint32, _ []byte) error {
	o.Objects[len(o.Objects)-1].Hash = h
	return nil
}

// Reader inspects push data from a git client, extracting the pushed
// references and storing the packfile objects into the repository's
// object database. Refs are not touched; the handler applies them
// after the hooks have run.
type Reader struct {
	packFile     *os.File
	storer       storage.Storer
	References   PackedReferences
	Objects      []*PackObject
	request      *packp.ReferenceUpdateRequest
	totalObjSize int64
}

// NewReader creates a Reader that parses objects into storer
func NewReader(storer storage.Storer) (*Reader, error) {
	packFile, err := ioutil.TempFile(os.TempDir(), "pack")
	if err != nil {
		return nil, err
	}

	return &Reader{
		packFile:   packFile,
		storer:     storer,
		Objects:    []*PackObject{},
		References: make(map[string]*PackedReferenceObject),
	}, nil
}

// Write implements the io.Writer interface.
func (r *Reader) Write(p []byte) (int, error) {
	return r.packFile.Write(p)
}

// GetUpdateRequest returns the decoded reference update request
func (r *Reader) GetUpdateRequest() *packp.ReferenceUpdateRequest {
	return r.request
}

// GetSizeObjects returns the inflated size of the pushed objects
func (r *Reader) GetSizeObjects() int64 {
	return r.totalObjSize
}

// Read decodes the buffered push request, extracts the reference
// updates and parses the packfile into the object database.
func (r *Reader) Read() error {

	defer r.packFile.Close()
	defer os.Remove(r.packFile.Name())

	_, _ = r.packFile.Seek(0, 0)

	r.request = packp.NewReferenceUpdateRequest()
	if err := r.request.Decode(r.packFile); err != nil {
		return errors.Wrap(err, "failed to decode request pack")
	}

	for _, cmd := range r.request.Commands {
		r.References[cmd.Name.String()] = &PackedReferenceObject{
			OldHash: cmd.Old.String(),
			NewHash: cmd.New.String(),
		}
	}

	// A deletes-only push carries no packfile
	packSig := make([]byte, 4)
	_, _ = r.packFile.Read(packSig)
	if string(packSig) != "PACK" {
		return nil
	}
	_, _ = r.packFile.Seek(-4, 1)

	scn := packfile.NewScanner(r.packFile)
	defer scn.Close()

	observer := &ObjectObserver{}
	parser, err := packfile.NewParserWithStorage(scn, r.storer, observer)
	if err != nil {
		return err
	}
	if _, err = parser.Parse(); err != nil {
		return err
	}

	r.Objects = observer.Objects
	r.totalObjSize = observer.totalSize

	return nil
}
