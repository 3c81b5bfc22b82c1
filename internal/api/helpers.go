package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sanyexieai/sevino/internal/objectstore"
)

// envelope is the wire shape of every JSON response. data and error are
// always present, null when unset.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *string     `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, v interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: &msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// statusFor maps store error kinds to HTTP statuses. Conflicts and
// validation failures are client errors; broken internal state is a 500.
func statusFor(err error) int {
	switch objectstore.KindOf(err) {
	case objectstore.KindNotFound:
		return http.StatusNotFound
	case objectstore.KindInvalidName, objectstore.KindInvalidKey,
		objectstore.KindInvalidDeduplicationMode, objectstore.KindInvalidMetadata,
		objectstore.KindAlreadyExists, objectstore.KindNotEmpty,
		objectstore.KindDuplicateContent, objectstore.KindHasReferences,
		objectstore.KindPreconditionFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// readBody drains an upload body. A body past the configured cap surfaces
// as 413; the middleware installs the MaxBytesReader.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds limit of %d bytes", mbe.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	return data, true
}
