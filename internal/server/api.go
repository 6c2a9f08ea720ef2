package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/sprintlog/internal/ledger"
	"github.com/TobiSchelling/sprintlog/internal/report"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func storyIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "story id is required")
		return "", false
	}
	return id, true
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	storyID, ok := storyIDParam(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "report too large")
		return
	}

	res, err := s.ledger.Ingest(r.Context(), storyID, string(body), ledger.WithSource("http"))
	if err != nil {
		s.logger.Error("ingest failed", zap.String("story", storyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storing report failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	storyID, ok := storyIDParam(w, r)
	if !ok {
		return
	}
	view, err := s.ledger.Story(r.Context(), storyID, r.URL.Query().Get("cycle"))
	if err != nil {
		s.storyError(w, storyID, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// descriptionResponse is the payload the browser overlay renders.
type descriptionResponse struct {
	PersonalProcessData []report.ActivityRecord `json:"personal_process_data"`
	Tags                map[string][]string     `json:"tags"`
	Summary             string                  `json:"summary"`
}

func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	storyID := strings.TrimSpace(r.URL.Query().Get("story_id"))
	if storyID == "" {
		writeError(w, http.StatusBadRequest, "story_id is required")
		return
	}
	view, err := s.ledger.Story(r.Context(), storyID, "")
	if err != nil {
		s.storyError(w, storyID, err)
		return
	}
	resp := descriptionResponse{
		PersonalProcessData: view.Records,
		Tags:                view.Tags,
		Summary:             derefString(view.Summary),
	}
	if resp.Tags == nil {
		resp.Tags = map[string][]string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetTags(w http.ResponseWriter, r *http.Request) {
	storyID, ok := storyIDParam(w, r)
	if !ok {
		return
	}
	var tags map[string][]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&tags); err != nil {
		writeError(w, http.StatusBadRequest, "tags must be a JSON object of string lists")
		return
	}
	if err := s.ledger.SetTags(r.Context(), storyID, tags); err != nil {
		s.logger.Error("storing tags failed", zap.String("story", storyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storing tags failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runResponse struct {
	ID                string  `json:"id"`
	CycleID           string  `json:"cycle_id"`
	Source            *string `json:"source"`
	Inserted          int     `json:"inserted"`
	Updated           int     `json:"updated"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	Changed           bool    `json:"changed"`
	Error             *string `json:"error,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	storyID, ok := storyIDParam(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.ledger.History(r.Context(), storyID, limit)
	if err != nil {
		s.logger.Error("reading history failed", zap.String("story", storyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reading history failed")
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			ID:                run.ID,
			CycleID:           run.CycleID,
			Source:            run.Source,
			Inserted:          run.Inserted,
			Updated:           run.Updated,
			DuplicatesRemoved: run.DuplicatesRemoved,
			Changed:           run.Changed,
			Error:             run.Error,
			CreatedAt:         run.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) storyError(w http.ResponseWriter, storyID string, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data for story "+storyID)
		return
	}
	s.logger.Error("reading story failed", zap.String("story", storyID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "reading story failed")
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
