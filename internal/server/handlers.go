package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildscan/qto/internal/aggregate"
	"github.com/buildscan/qto/internal/mapper"
	"github.com/buildscan/qto/internal/pipeline"
	"github.com/buildscan/qto/internal/splitter"
	"github.com/buildscan/qto/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ver, _, _ := version.Info()
	response := HealthResponse{
		Status:  "healthy",
		Version: ver,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// extractHandler accepts a multipart PDF upload plus a language selector and
// returns the extraction result, possibly partial.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	maxBytes := s.extractor.Config().MaxUploadBytes
	// Slack for the multipart envelope; the pipeline validates the exact
	// document size itself.
	bodyLimit := maxBytes + 4096
	if r.ContentLength > bodyLimit {
		s.writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "too_large", "document exceeds the upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)

	if err := r.ParseMultipartForm(bodyLimit); err != nil {
		// multipart does not preserve *http.MaxBytesError through its
		// own error wrapping, so match the message as well.
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) || strings.Contains(err.Error(), "request body too large") {
			s.writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "too_large", "document exceeds the upload limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid_request", "", "failed to parse form data")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "", "no document file provided")
		return
	}
	defer func() { _ = file.Close() }()

	pdfBytes, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", "", "failed to read document data")
		return
	}
	uploadSizeBytes.Observe(float64(len(pdfBytes)))

	language := r.FormValue("language")
	if language == "" {
		language = string(mapper.LanguageEnglish)
	}

	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	req := pipeline.Request{
		PDF:           pdfBytes,
		Language:      mapper.Language(language),
		CorrelationID: correlationID,
	}

	result, err := s.extractor.Extract(r.Context(), req)
	if err != nil {
		s.handleExtractionError(w, language, err)
		return
	}

	s.recordResultMetrics(language, result)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Correlation-ID", correlationID)
	w.WriteHeader(s.resultStatus(result))
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("failed to encode extraction response", "error", err, "correlation_id", correlationID)
	}
}

// resultStatus maps a pipeline outcome to an HTTP status. A run where every
// chunk failed upstream is a gateway problem, not a partial success.
func (s *Server) resultStatus(result *aggregate.Result) int {
	if result.ChunksSucceeded > 0 || result.ChunksTotal == 0 {
		return http.StatusOK
	}
	for _, f := range result.Failures {
		if f.Kind != aggregate.ErrDeadlineExceeded {
			return http.StatusBadGateway
		}
	}
	return http.StatusGatewayTimeout
}

// handleExtractionError maps request-level errors to HTTP statuses.
func (s *Server) handleExtractionError(w http.ResponseWriter, language string, err error) {
	extractionRequestsTotal.WithLabelValues(language, "rejected").Inc()

	var invalidErr *pipeline.InvalidRequestError
	if errors.As(err, &invalidErr) {
		status := http.StatusBadRequest
		if invalidErr.Kind == pipeline.RejectTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		s.writeError(w, status, "invalid_request", invalidErr.Kind, invalidErr.Reason)
		return
	}

	var malformedErr *splitter.MalformedDocumentError
	if errors.As(err, &malformedErr) {
		s.writeError(w, http.StatusBadRequest, "malformed_document", "", malformedErr.Reason)
		return
	}

	slog.Error("extraction failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal", "", "extraction failed")
}

func (s *Server) recordResultMetrics(language string, result *aggregate.Result) {
	status := "ok"
	switch {
	case result.ChunksSucceeded == 0 && result.ChunksTotal > 0:
		status = "failed"
	case result.Partial:
		status = "partial"
	}
	extractionRequestsTotal.WithLabelValues(language, status).Inc()
	extractionDuration.WithLabelValues(language).Observe(float64(result.ProcessingTimeMS) / 1000)
	for _, f := range result.Failures {
		chunksFailedTotal.WithLabelValues(string(f.Kind)).Inc()
	}
	if result.DroppedItems > 0 {
		droppedItemsTotal.Add(float64(result.DroppedItems))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, errKind, detail, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := ErrorResponse{Error: errKind, Kind: detail, Message: message}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
