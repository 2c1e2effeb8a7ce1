// Package archive stores generated documents (invoice and checklist PDFs)
// and keeps their index in the text store under pdfArchive.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"detailcrm/internal/archive/core"
	"detailcrm/internal/config"
	"detailcrm/internal/infra/archive/fs"
	"detailcrm/internal/infra/archive/memory"
	"detailcrm/internal/infra/archive/s3"
	"detailcrm/internal/kv"
	"detailcrm/internal/obs"
	"detailcrm/pkg/domain"
)

type (
	// Store is the object store behind the archive.
	Store = core.Store
	// Object describes a stored document.
	Object = core.Object
)

// Open selects the archive driver named by cfg.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch core.Driver(cfg.ArchiveDriver) {
	case core.DriverFilesystem, "":
		return fs.New(cfg.ArchiveFSRoot)
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.ArchiveS3Bucket,
			Region:          cfg.ArchiveS3Region,
			Endpoint:        cfg.ArchiveS3Endpoint,
			PathStyle:       cfg.ArchiveS3PathStyle,
			AccessKeyID:     cfg.ArchiveS3AccessKey,
			SecretAccessKey: cfg.ArchiveS3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown archive driver %s", cfg.ArchiveDriver)
	}
}

// Document is an archive request.
type Document struct {
	Name        string `json:"name"`
	RecordType  string `json:"recordType,omitempty"`
	RecordID    string `json:"recordId,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Content     []byte `json:"content"`
}

// Archive writes document content to a Store and indexes it.
type Archive struct {
	store  Store
	text   *kv.TextStore
	logger obs.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New returns an archive over store indexed in text.
func New(store Store, text *kv.TextStore, logger obs.Logger) *Archive {
	return &Archive{store: store, text: text, logger: obs.OrNop(logger), now: time.Now}
}

// Driver reports the backing driver.
func (a *Archive) Driver() core.Driver { return a.store.Driver() }

func (a *Archive) index() ([]domain.ArchivedDocument, error) {
	docs := []domain.ArchivedDocument{}
	if _, err := a.text.GetJSON(domain.TextPDFArchive, &docs); err != nil {
		return []domain.ArchivedDocument{}, err
	}
	return docs, nil
}

// List returns the index, newest first.
func (a *Archive) List() ([]domain.ArchivedDocument, error) {
	docs, err := a.index()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

func objectKey(d Document, id string) string {
	dir := d.RecordType
	if dir == "" {
		dir = "documents"
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '-'
	}, path.Base(d.Name))
	return path.Join(dir, id+"-"+name)
}

// Save stores the content and appends an index entry. A failed index
// write removes the stored object again.
func (a *Archive) Save(ctx context.Context, d Document) (domain.ArchivedDocument, error) {
	if strings.TrimSpace(d.Name) == "" {
		return domain.ArchivedDocument{}, domain.Invalid("document name is required")
	}
	if len(d.Content) == 0 {
		return domain.ArchivedDocument{}, domain.Invalid("document content is empty")
	}
	if d.ContentType == "" {
		d.ContentType = "application/pdf"
	}
	id := "doc_" + uuid.NewString()
	key := objectKey(d, id)
	obj, err := a.store.Put(ctx, key, bytes.NewReader(d.Content), core.PutOptions{
		ContentType: d.ContentType,
		Metadata:    map[string]string{"record-type": d.RecordType, "record-id": d.RecordID},
	})
	if err != nil {
		return domain.ArchivedDocument{}, domain.StorageFailure(fmt.Errorf("archive %s: %w", key, err))
	}
	url := obj.URL
	if link, err := a.store.Link(ctx, key, core.LinkOptions{}); err == nil {
		url = link
	} else if !errors.Is(err, core.ErrUnsupported) {
		a.logger.Warn("archive link failed", "key", key, "error", err)
	}
	doc := domain.ArchivedDocument{
		ID:          id,
		Name:        d.Name,
		RecordType:  d.RecordType,
		RecordID:    d.RecordID,
		ContentType: d.ContentType,
		ObjectKey:   key,
		Size:        obj.Size,
		URL:         url,
		CreatedAt:   a.now().UTC(),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	docs, err := a.index()
	if err == nil {
		err = a.text.SetJSON(ctx, domain.TextPDFArchive, append(docs, doc))
	}
	if err != nil {
		if _, derr := a.store.Delete(ctx, key); derr != nil {
			a.logger.Warn("archive cleanup failed", "key", key, "error", derr)
		}
		return domain.ArchivedDocument{}, domain.StorageFailure(err)
	}
	return doc, nil
}

// Find returns the index entry for id.
func (a *Archive) Find(id string) (domain.ArchivedDocument, bool, error) {
	docs, err := a.index()
	if err != nil {
		return domain.ArchivedDocument{}, false, err
	}
	for _, d := range docs {
		if d.ID == id {
			return d, true, nil
		}
	}
	return domain.ArchivedDocument{}, false, nil
}

// Read returns the document content.
func (a *Archive) Read(ctx context.Context, id string) (domain.ArchivedDocument, []byte, error) {
	doc, ok, err := a.Find(id)
	if err != nil {
		return doc, nil, err
	}
	if !ok {
		return doc, nil, domain.NotFound("document", id)
	}
	_, rc, err := a.store.Get(ctx, doc.ObjectKey)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return doc, nil, domain.NotFound("document", id)
		}
		return doc, nil, domain.StorageFailure(err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return doc, nil, domain.StorageFailure(err)
	}
	return doc, body, nil
}

// Delete drops the index entry and the stored object. Deleting an unknown
// id is not an error.
func (a *Archive) Delete(ctx context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	docs, err := a.index()
	if err != nil {
		return false, err
	}
	out := docs[:0]
	var removed *domain.ArchivedDocument
	for i := range docs {
		if docs[i].ID == id {
			d := docs[i]
			removed = &d
			continue
		}
		out = append(out, docs[i])
	}
	if removed == nil {
		return false, nil
	}
	if err := a.text.SetJSON(ctx, domain.TextPDFArchive, out); err != nil {
		return false, domain.StorageFailure(err)
	}
	if _, err := a.store.Delete(ctx, removed.ObjectKey); err != nil {
		a.logger.Warn("archive object delete failed", "key", removed.ObjectKey, "error", err)
	}
	return true, nil
}
