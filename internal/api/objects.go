package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sanyexieai/sevino/internal/metadata"
	"github.com/sanyexieai/sevino/internal/objectstore"
)

type objectListResponse struct {
	Objects []metadata.Object `json:"objects"`
}

type updateMetadataRequest struct {
	ContentType  *string           `json:"content_type"`
	UserMetadata map[string]string `json:"user_metadata"`
	CustomETag   *string           `json:"custom_etag"`
}

func (h *Handler) handlePutObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	q := r.URL.Query()

	policy, err := objectstore.ParseDedupPolicy(q.Get("deduplication_mode"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	userMeta := map[string]string{}
	if custom := q.Get("custom"); custom != "" {
		if err := json.Unmarshal([]byte(custom), &userMeta); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid custom metadata: %v", err))
			return
		}
	}

	data, ok := readBody(w, r)
	if !ok {
		return
	}

	obj, err := h.store.PutObject(bucket, key, data, objectstore.PutOptions{
		ContentType:  q.Get("content_type"),
		UserMetadata: userMeta,
		Dedup:        policy,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, obj)
}

// handleGetObject serves raw bytes. Errors carry only a status code; the
// endpoint's contract is bytes or nothing.
func (h *Handler) handleGetObject(w http.ResponseWriter, _ *http.Request, bucket, key string) {
	data, meta, err := h.store.GetObject(bucket, key)
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("ETag", meta.ETag)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Write(data)
}

func (h *Handler) handleDeleteObject(w http.ResponseWriter, _ *http.Request, bucket, key string) {
	if err := h.store.DeleteObject(bucket, key); err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, nil)
}

func (h *Handler) handleListObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()

	query := objectstore.ListQuery{
		Prefix:     q.Get("prefix"),
		Delimiter:  q.Get("delimiter"),
		Marker:     q.Get("marker"),
		ETagFilter: q.Get("etag_filter"),
	}
	if mk := q.Get("max_keys"); mk != "" {
		if v, err := strconv.Atoi(mk); err == nil && v > 0 {
			query.MaxKeys = v
		}
	}
	for k, vs := range q {
		name, ok := strings.CutPrefix(k, "custom_")
		if !ok || name == "" || len(vs) == 0 {
			continue
		}
		query.CustomFilters = append(query.CustomFilters, objectstore.MetadataFilter{
			Name:  name,
			Value: vs[0],
		})
	}

	objects, err := h.store.ListObjects(bucket, query)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if objects == nil {
		objects = []metadata.Object{}
	}
	writeData(w, objectListResponse{Objects: objects})
}

func (h *Handler) handleGetObjectMetadata(w http.ResponseWriter, _ *http.Request, bucket, key string) {
	meta, err := h.store.GetObjectMetadata(bucket, key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, meta)
}

func (h *Handler) handleUpdateObjectMetadata(w http.ResponseWriter, r *http.Request, bucket, key string) {
	var req updateMetadataRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	obj, err := h.store.UpdateObjectMetadata(bucket, key, req.ContentType, req.UserMetadata, req.CustomETag)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, obj)
}

func (h *Handler) handleListObjectVersions(w http.ResponseWriter, _ *http.Request, bucket, key string) {
	versions, err := h.store.ListObjectVersions(bucket, key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if versions == nil {
		versions = []*metadata.ObjectMeta{}
	}
	writeData(w, versions)
}

// handleMultipartUpload stores one part verbatim under {key}.part.{n}.
// Parts are independent objects; assembly is left to the caller.
func (h *Handler) handleMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	q := r.URL.Query()

	partNumber, errPart := strconv.ParseUint(q.Get("part_number"), 10, 32)
	totalParts, errTotal := strconv.ParseUint(q.Get("total_parts"), 10, 32)
	uploadID := q.Get("upload_id")
	if errPart != nil || errTotal != nil || uploadID == "" {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload request")
		return
	}

	data, ok := readBody(w, r)
	if !ok {
		return
	}

	partKey := fmt.Sprintf("%s.part.%d", key, partNumber)
	obj, err := h.store.PutObject(bucket, partKey, data, objectstore.PutOptions{
		ContentType: q.Get("content_type"),
		UserMetadata: map[string]string{
			"multipart_upload_id": uploadID,
			"part_number":         strconv.FormatUint(partNumber, 10),
			"total_parts":         strconv.FormatUint(totalParts, 10),
		},
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, obj)
}
