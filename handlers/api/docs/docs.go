package docs

import (
	"context"
	"net/http"

	"collab-space/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Directory is the slice of the document directory service the handlers need.
type Directory interface {
	List(ctx context.Context) ([]core.DocumentMeta, error)
	Delete(ctx context.Context, id string) error
}

// HandleList returns all documents, most recently modified first.
func HandleList(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := dir.List(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list documents")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list documents"})
			return
		}

		// Return an empty array instead of null when there are no documents.
		if docs == nil {
			docs = []core.DocumentMeta{}
		}

		render.JSON(w, r, docs)
	}
}

// HandleCreate mints a fresh document id. No state is written anywhere; the
// document materializes when the first connection for the id arrives.
func HandleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := ulid.Make().String()
		logrus.WithField("document_id", id).Info("Document id minted")
		render.JSON(w, r, map[string]string{"id": id})
	}
}

// HandleDelete removes a document from memory and from the store. Deleting a
// document that does not exist anywhere is a successful no-op.
func HandleDelete(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Document id is required"})
			return
		}

		if err := dir.Delete(r.Context(), id); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":       err,
				"document_id": id,
			}).Error("Failed to delete document")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to delete document"})
			return
		}

		render.JSON(w, r, map[string]bool{"ok": true})
	}
}

// HandleHealth reports process liveness. It deliberately checks no
// dependencies; a store outage must not make the process look dead.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}
