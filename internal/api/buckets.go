package api

import (
	"net/http"

	"github.com/sanyexieai/sevino/internal/metadata"
)

type createBucketRequest struct {
	Name string `json:"name"`
}

type bucketListResponse struct {
	Buckets []*metadata.Bucket `json:"buckets"`
}

func (h *Handler) handleListBuckets(w http.ResponseWriter, _ *http.Request) {
	buckets := h.store.ListBuckets()
	if buckets == nil {
		buckets = []*metadata.Bucket{}
	}
	writeData(w, bucketListResponse{Buckets: buckets})
}

func (h *Handler) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	var req createBucketRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	bucket, err := h.store.CreateBucket(req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, bucket)
}

func (h *Handler) handleGetBucket(w http.ResponseWriter, _ *http.Request, name string) {
	bucket, err := h.store.GetBucket(name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, bucket)
}

func (h *Handler) handleDeleteBucket(w http.ResponseWriter, _ *http.Request, name string) {
	if err := h.store.DeleteBucket(name); err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, nil)
}
