package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/TabSync/internal/batch"
	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/logging"
)

// formMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const formMemory = 32 << 20

var endpoints = []string{
	"GET /health",
	"GET /api/datasets",
	"POST /api/sync/{dataset}",
	"POST /api/sync",
	"GET /api/snapshots/{dataset}",
	"GET /api/test-store",
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "tabsync",
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"uptime": s.clock.Since(s.started).Round(time.Second).String(),
	})
}

// datasetInfo is one entry of GET /api/datasets with defaults resolved.
type datasetInfo struct {
	Name           string `json:"name"`
	Group          string `json:"group,omitempty"`
	KeyColumn      string `json:"keyColumn"`
	MetadataColumn string `json:"metadataColumn"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	defaults := s.syncer.Defaults()

	defs := s.registry.All()
	out := make([]datasetInfo, 0, len(defs))
	for _, d := range defs {
		info := datasetInfo{
			Name:           d.Name,
			Group:          d.Group,
			KeyColumn:      d.KeyColumn,
			MetadataColumn: d.MetadataColumn,
		}
		if info.KeyColumn == "" {
			info.KeyColumn = defaults.KeyColumn
		}
		if info.MetadataColumn == "" {
			info.MetadataColumn = defaults.MetadataColumn
		}
		out = append(out, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"datasets":     out,
		"auditDataset": s.syncer.AuditDataset(),
	})
}

// syncResponse is a SyncSummary with the user-facing error code of a
// failed pass.
type syncResponse struct {
	core.SyncSummary
	Code   string `json:"code,omitempty"`
	Action string `json:"action,omitempty"`
}

// handleSyncDataset merges the uploaded export into one dataset.
//
// Form fields: file (csv or xlsx, required), keyColumn and encoding
// (optional overrides).
func (s *Server) handleSyncDataset(w http.ResponseWriter, r *http.Request) {
	name, def, err := s.datasetParam(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if limit := s.cfg.Batch.MaxFileSize; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+formMemory)
	}
	if err := parseForm(r); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	b, err := batch.Read(file, header.Filename, s.batchOptions(r))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	cfg := def.Config()
	if key := strings.TrimSpace(r.FormValue("keyColumn")); key != "" {
		cfg.KeyColumn = key
	}

	summary := s.syncer.Sync(withTrigger(r.Context(), r), name, b, cfg)
	resp := syncResponse{SyncSummary: summary}
	if summary.Failed() {
		msg := core.MapError(summary.Err())
		resp.Code, resp.Action = msg.Code, msg.Action
		logging.FromContext(r.Context()).Warn("sync failed",
			"dataset", name,
			"error", summary.Error,
			"code", msg.Code,
		)
	}
	writeJSON(w, statusFor(summary.Err()), resp)
}

// handleSyncAll syncs every uploaded file into the dataset named by its
// file name, e.g. "Draft.csv" into Draft. Files that cannot be read or name
// an unknown dataset are reported as failed results; the rest still run.
// The whole body is capped at BATCH_MAX_UPLOAD_SIZE.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if limit := s.cfg.Batch.MaxUploadSize; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := parseForm(r); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	files := uploadedFiles(r.MultipartForm)
	if len(files) == 0 {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}

	runID := uuid.New().String()
	ctx := logging.WithRunID(withTrigger(r.Context(), r), runID)
	opts := s.batchOptions(r)

	var (
		failed  []core.SyncSummary
		batches []core.DatasetBatch
	)
	for _, fh := range files {
		name := batch.DatasetName(fh.Filename)

		def, err := s.registry.Lookup(name)
		if err != nil {
			failed = append(failed, core.FailedSummary(name, err))
			continue
		}

		b, err := readPart(fh, opts)
		if err != nil {
			failed = append(failed, core.FailedSummary(name, fmt.Errorf("read %s: %w", fh.Filename, err)))
			continue
		}

		batches = append(batches, core.DatasetBatch{Name: name, Batch: b, Config: def.Config()})
	}

	results := append(s.syncer.SyncAll(ctx, batches), failed...)
	result := core.NewRunResult(runID, results)

	logging.FromContext(ctx).Info("sync run complete",
		"files", len(files),
		"successful", result.Successful,
		"failed", result.Failed,
	)
	writeJSON(w, http.StatusOK, result)
}

// snapshotResponse is the body of GET /api/snapshots/{dataset}.
type snapshotResponse struct {
	Dataset   string     `json:"dataset"`
	Timestamp time.Time  `json:"timestamp"`
	Columns   []string   `json:"columns"`
	RowCount  int        `json:"rowCount"`
	Rows      []core.Row `json:"rows"`
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		respondError(w, r, errNoSnapshots, http.StatusNotFound)
		return
	}

	name, _, err := s.datasetParam(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	snap, ok, err := s.snapshots.Load(r.Context(), name)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if !ok {
		respondError(w, r, fmt.Errorf("%w %q", errNoSnapshot, name), http.StatusNotFound)
		return
	}

	rows := snap.Dataset.Rows
	if rows == nil {
		rows = []core.Row{}
	}
	writeJSON(w, http.StatusOK, snapshotResponse{
		Dataset:   name,
		Timestamp: snap.TakenAt,
		Columns:   snap.Dataset.Columns,
		RowCount:  len(rows),
		Rows:      rows,
	})
}

// handleTestStore checks the store is reachable by reading the audit dataset.
func (s *Server) handleTestStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.store.Ping(ctx); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	audit, err := s.store.ReadDataset(ctx, s.syncer.AuditDataset())
	if err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"driver":       s.cfg.Store.Driver,
		"auditDataset": s.syncer.AuditDataset(),
		"auditRows":    audit.Len(),
	})
}

// datasetParam resolves the {dataset} URL parameter against the registry.
// Names may contain escaped slashes, e.g. "Rejected%20%2F%20Insufficient".
func (s *Server) datasetParam(r *http.Request) (string, core.DatasetDefinition, error) {
	raw := chi.URLParam(r, "dataset")
	name, err := url.PathUnescape(raw)
	if err != nil {
		name = raw
	}

	def, err := s.registry.Lookup(name)
	if err != nil {
		return name, core.DatasetDefinition{}, err
	}
	return name, def, nil
}

func (s *Server) batchOptions(r *http.Request) batch.Options {
	opts := batch.Options{
		Encoding: s.cfg.Batch.Encoding,
		MaxSize:  s.cfg.Batch.MaxFileSize,
	}
	if enc := strings.TrimSpace(r.FormValue("encoding")); enc != "" {
		opts.Encoding = enc
	}
	if sheet := strings.TrimSpace(r.FormValue("sheet")); sheet != "" {
		opts.Sheet = sheet
	}
	return opts
}

// parseForm parses a multipart body, reporting an oversized body as
// batch.ErrFileTooLarge.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(formMemory)
	if err == nil {
		return nil
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return fmt.Errorf("%w: body exceeds %d bytes", batch.ErrFileTooLarge, tooBig.Limit)
	}
	return fmt.Errorf("%w: %v", errNoFile, err)
}

// uploadedFiles returns every file part of the form ordered by file name.
func uploadedFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	var files []*multipart.FileHeader
	for _, fhs := range form.File {
		files = append(files, fhs...)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Filename < files[j].Filename
	})
	return files
}

func readPart(fh *multipart.FileHeader, opts batch.Options) (core.Batch, error) {
	f, err := fh.Open()
	if err != nil {
		return core.Batch{}, err
	}
	defer f.Close()
	return batch.Read(f, fh.Filename, opts)
}
