package checklist

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"

	"github.com/fieldscope/vistoria/log"
	"github.com/fieldscope/vistoria/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type uploadedMedia struct {
	photos   map[string][]string // question id -> uploaded URLs, payload order
	evidence map[string][]string
	selfie   string
	manager  string
}

// uploadMedia pushes every binary of the request to the object store
// concurrently and waits for all of them before the transactional write.
// Question photos and attached evidence propagate failures; the supervisor
// selfie and the manager signature degrade to a missing reference with a
// warning, since a lost signature is not worth failing the submission over.
func uploadMedia(ctx context.Context, store storage.ObjectStore, req SaveRequest) (uploadedMedia, error) {
	up := uploadedMedia{
		photos:   make(map[string][]string, len(req.Photos)),
		evidence: make(map[string][]string, len(req.Evidence)),
	}

	grp, grpCtx := errgroup.WithContext(ctx)

	uploadSet := func(dst map[string][]string, src map[string][]Attachment) {
		for qid, atts := range src {
			qid := qid
			urls := make([]string, len(atts))
			dst[qid] = urls
			for i, att := range atts {
				i, att := i, att
				grp.Go(func() error {
					url, err := putAttachment(grpCtx, store, att)
					if err != nil {
						return errors.Wrapf(err, "upload photo for question %s", qid)
					}
					urls[i] = url
					return nil
				})
			}
		}
	}
	uploadSet(up.photos, req.Photos)
	uploadSet(up.evidence, req.Evidence)

	if req.Selfie != nil {
		grp.Go(func() error {
			url, err := putAttachment(grpCtx, store, *req.Selfie)
			if err != nil {
				log.Warnf("supervisor signature upload failed, continuing without: %v", err)
				return nil
			}
			up.selfie = url
			return nil
		})
	}

	if req.ManagerSignatureDataURL != "" {
		grp.Go(func() error {
			url, err := putDataURL(grpCtx, store, req.ManagerSignatureDataURL)
			if err != nil {
				log.Warnf("manager signature upload failed, continuing without: %v", err)
				return nil
			}
			up.manager = url
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return up, err
	}
	return up, nil
}

func putAttachment(ctx context.Context, store storage.ObjectStore, att Attachment) (string, error) {
	src, err := att.Open()
	if err != nil {
		return "", errors.Wrap(err, "open attachment")
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(att.Filename))
	if len(ext) > 8 {
		ext = ext[:8]
	}
	key := "foto_" + uuid.NewString() + ext
	return store.Put(ctx, key, att.ContentType, src)
}

// putDataURL decodes an inline base64 data-URL image and stores it.
func putDataURL(ctx context.Context, store storage.ObjectStore, dataURL string) (string, error) {
	meta, payload, found := strings.Cut(dataURL, ",")
	if !found || !strings.HasPrefix(meta, "data:") {
		return "", errors.New("malformed data URL")
	}
	contentType := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", errors.Wrap(err, "decode base64")
	}

	ext := ".png"
	if strings.Contains(contentType, "jpeg") {
		ext = ".jpg"
	}
	key := "assinatura_" + uuid.NewString() + ext
	return store.Put(ctx, key, contentType, bytes.NewReader(raw))
}
