package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/querent-ai/querent-go/internal/pipeline"
	"github.com/querent-ai/querent-go/internal/source"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handlePipelineStart implements "pipelines: start".
func (s *Server) handlePipelineStart(w http.ResponseWriter, r *http.Request) {
	var req PipelineStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PipelineID == "" {
		writeError(w, http.StatusBadRequest, "pipeline_id is required")
		return
	}
	if _, exists := s.getHandle(req.PipelineID); exists {
		writeError(w, http.StatusConflict, "pipeline already running")
		return
	}

	sources := make([]source.Source, 0, len(req.SourceRoots))
	for _, src := range buildSources(req) {
		sources = append(sources, src)
	}

	data, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.Storage.SetPipeline(r.Context(), req.PipelineID, data); err != nil {
		s.Logger.Error("persist pipeline spec", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	handle, err := pipeline.Start(context.Background(), pipeline.Spec{
		PipelineID:          req.PipelineID,
		CollectionID:        req.CollectionID,
		Sources:             sources,
		Storage:             s.Storage,
		Engine:              s.Engine,
		IngestorCapacity:    req.IngestorCapacity,
		BatchNumEventsLimit: req.BatchNumEventsLimit,
		Publisher:           s.Publisher,
		Logger:              s.Logger,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start pipeline")
		return
	}
	s.putHandle(req.PipelineID, handle)
	writeJSON(w, http.StatusCreated, map[string]string{"pipeline_id": req.PipelineID, "status": pipeline.StatusRunning.String()})
}

// handlePipelineStop implements "pipelines: stop".
func (s *Server) handlePipelineStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, ok := s.getHandle(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no running pipeline with that id")
		return
	}
	h.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"pipeline_id": id, "status": "stopping"})
}

// handlePipelineRestart implements "pipelines: restart" — stop the running
// handle (if any) and re-run Start against the persisted spec.
func (s *Server) handlePipelineRestart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h, ok := s.getHandle(id); ok {
		h.Stop()
		h.Wait()
		s.dropHandle(id)
	}

	data, err := s.Storage.GetPipeline(r.Context(), id)
	if err != nil || data == nil {
		writeError(w, http.StatusNotFound, "no persisted pipeline spec with that id")
		return
	}
	var req PipelineStartRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt persisted pipeline spec")
		return
	}

	sources := make([]source.Source, 0, len(req.SourceRoots))
	for _, src := range buildSources(req) {
		sources = append(sources, src)
	}

	handle, err := pipeline.Start(context.Background(), pipeline.Spec{
		PipelineID:          req.PipelineID,
		CollectionID:        req.CollectionID,
		Sources:             sources,
		Storage:             s.Storage,
		Engine:              s.Engine,
		IngestorCapacity:    req.IngestorCapacity,
		BatchNumEventsLimit: req.BatchNumEventsLimit,
		Publisher:           s.Publisher,
		Logger:              s.Logger,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to restart pipeline")
		return
	}
	s.putHandle(id, handle)
	writeJSON(w, http.StatusOK, map[string]string{"pipeline_id": id, "status": pipeline.StatusRunning.String()})
}

// PipelineObservation is the JSON body for "pipelines: observe".
type PipelineObservation struct {
	PipelineID string                      `json:"pipeline_id"`
	Status     string                      `json:"status"`
	Stats      pipeline.IndexingStatistics `json:"stats"`
}

// handlePipelineObserve implements "pipelines: observe".
func (s *Server) handlePipelineObserve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, ok := s.getHandle(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no running pipeline with that id")
		return
	}
	stats, status := h.Observe()
	writeJSON(w, http.StatusOK, PipelineObservation{PipelineID: id, Status: status.String(), Stats: stats})
}

// handlePipelineDescribe implements "pipelines: describe" — returns the
// persisted start request regardless of whether the pipeline is running.
func (s *Server) handlePipelineDescribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.Storage.GetPipeline(r.Context(), id)
	if err != nil || data == nil {
		writeError(w, http.StatusNotFound, "no persisted pipeline spec with that id")
		return
	}
	var req PipelineStartRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt persisted pipeline spec")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handlePipelineList implements "pipelines: list".
func (s *Server) handlePipelineList(w http.ResponseWriter, r *http.Request) {
	raw, err := s.Storage.GetAllPipelines(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make(map[string]PipelineStartRequest, len(raw))
	for id, data := range raw {
		var req PipelineStartRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.Logger.Warn("api: dropping unreadable persisted pipeline", "pipeline", id, "err", err)
			continue
		}
		out[id] = req
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePipelineIngestTokens implements "pipelines: ingest-tokens
// (streaming)" by long-polling Observe and flushing one JSON line per tick
// until the pipeline reaches a terminal status or the client disconnects.
func (s *Server) handlePipelineIngestTokens(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, ok := s.getHandle(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no running pipeline with that id")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		stats, status := h.Observe()
		enc.Encode(PipelineObservation{PipelineID: id, Status: status.String(), Stats: stats})
		if flusher != nil {
			flusher.Flush()
		}
		if status != pipeline.StatusRunning {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
