package http

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/rbac"
	"github.com/mind-engage/mindengage-training/internal/session"
	"github.com/mind-engage/mindengage-training/internal/storage"
)

const maxUploadBytes = 32 << 20

func MountAssets(r chi.Router, bs storage.BlobStore, svc *session.Service) {
	// POST /assets/submissions/{instanceID}  multipart file=
	r.With(rbac.Require("exam:take")).Post("/submissions/{instanceID}", func(w http.ResponseWriter, r *http.Request) {
		instanceID := chi.URLParam(r, "instanceID")
		learnerID, err := svc.CheckAccess(r.Context(), accountID(r), instanceID)
		if err != nil {
			fail(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			fail(w, r, apperr.Invalid("file required"))
			return
		}
		defer f.Close()

		key, err := bs.Put(r.Context(), storage.SubmissionAssetKey(instanceID, learnerID, hdr.Filename), f)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusCreated, "file uploaded", map[string]string{"key": key, "fileUrl": bs.URL(key)})
	})

	// GET /assets/*   -> returns the blob at whatever follows /assets/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key, err := storage.CleanKey(strings.TrimPrefix(chi.URLParam(r, "*"), "/"))
		if err != nil {
			fail(w, r, apperr.Invalid("invalid asset key"))
			return
		}
		if err := canRead(r, svc, key); err != nil {
			fail(w, r, err)
			return
		}
		rc, err := bs.Open(r.Context(), key)
		if errors.Is(err, fs.ErrNotExist) {
			fail(w, r, apperr.NotFound("asset not found"))
			return
		}
		if err != nil {
			fail(w, r, err)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(path.Ext(key))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = io.Copy(w, rc)
	})
}

// canRead lets the instructor owning the instance's exam read a submission
// asset, and a learner only the ones filed under their own learner id.
func canRead(r *http.Request, svc *session.Service, key string) error {
	_, instanceID, learnerID, err := storage.ParseSubmissionAsset(key)
	if err != nil {
		return apperr.Forbidden("forbidden")
	}
	if rbac.Can(rbac.RoleFromContext(r.Context()), "result:view-all") {
		return svc.OwnsInstance(r.Context(), accountID(r), instanceID)
	}
	lid, err := svc.LearnerID(r.Context(), accountID(r))
	if err != nil {
		return err
	}
	if learnerID != lid {
		return apperr.Forbidden("forbidden")
	}
	return nil
}
