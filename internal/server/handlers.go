package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/glyphd/internal/fonts"
	"github.com/Norgate-AV/glyphd/internal/generator"
	"github.com/Norgate-AV/glyphd/internal/metrics"
	"github.com/Norgate-AV/glyphd/internal/orchestrator"
	"github.com/Norgate-AV/glyphd/internal/params"
	"github.com/Norgate-AV/glyphd/internal/respond"
)

type errorBody struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := params.ParseQuery(r.URL.Query(), s.checkFontFile)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		s.writeError(w, r, err)
		return
	}

	out, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	respond.SetCacheHeaders(w, out.Key, out.Cached)

	if err := respond.Serve(w, r, out.Dir, out.Format); err != nil {
		w.Header().Del(respond.HeaderKey)
		w.Header().Del(respond.HeaderCache)

		if errors.Is(err, respond.ErrCacheCorruption) {
			metrics.RequestsTotal.WithLabelValues(metrics.OutcomeCorrupt).Inc()
		}

		s.writeError(w, r, zerr.With(err, "key", out.Key))
	}
}

func (s *Server) handleFonts(w http.ResponseWriter, r *http.Request) {
	out, err := s.fonts.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// handleHealth returns a JSON health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkFontFile rejects font files that are missing, unreadable, not fonts,
// or outside the configured directories. Valid paths are made absolute so
// the key does not depend on the server's working directory.
func (s *Server) checkFontFile(req *params.Request, verr *params.ValidationError) {
	if req.FontFile == "" {
		return
	}

	info, err := fonts.CheckFontFile(req.FontFile, s.fontDirs)
	switch {
	case err == nil:
		req.FontFile = info.Path
	case errors.Is(err, fonts.ErrFontNotAllowed):
		verr.Add(fmt.Sprintf("fontfile %q is outside the allowed font directories", req.FontFile))
	case errors.Is(err, fonts.ErrInvalidFont):
		verr.Add(fmt.Sprintf("fontfile %q is not a TrueType or OpenType font", req.FontFile))
	default:
		verr.Add(fmt.Sprintf("fontfile %q does not exist or cannot be read", req.FontFile))
	}
}

// writeError maps an error to its HTTP response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var verr *params.ValidationError
	var genErr *generator.GenerationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:      params.ErrInvalidRequest.Error(),
			Violations: verr.Violations,
		})

	case errors.Is(err, orchestrator.ErrLockConflict):
		w.Header().Set("Retry-After", strconv.Itoa(int(s.retryAfter.Seconds())))
		http.Error(w, "a build for this request is already in progress, retry later", http.StatusServiceUnavailable)

	case errors.As(err, &genErr):
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, formatGenerationError(genErr))

	case errors.Is(err, respond.ErrCacheCorruption):
		zerr.Log(ctx, s.logger, err)
		http.Error(w, "cached build is incomplete; retry with nocache=1 to rebuild", http.StatusInternalServerError)

	default:
		zerr.Log(ctx, s.logger, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func formatGenerationError(e *generator.GenerationError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "generation failed\nexit code: %d\ndescription: %s\n", e.ExitCode, e.Description)

	if e.Cause != nil {
		fmt.Fprintf(&b, "cause: %v\n", e.Cause)
	}

	fmt.Fprintf(&b, "\nstdout:\n%s\n", e.Stdout)
	fmt.Fprintf(&b, "\nstderr:\n%s\n", e.Stderr)

	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
