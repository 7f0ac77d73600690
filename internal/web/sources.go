package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/conorfennell/flashdeck/internal/sync"
)

func (s *Server) sourceList(r *http.Request) ([]sourceJSON, error) {
	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		return nil, err
	}
	out := make([]sourceJSON, len(sources))
	for i, src := range sources {
		out[i] = newSourceJSON(src)
	}
	return out, nil
}

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.sourceList(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

// handleCreateSource registers a local directory or git URL feeding a deck.
// The type is guessed from the path when not given.
func (s *Server) handleCreateSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		path := strings.TrimSpace(req.Path)
		if _, err := s.liveDeck(r.Context(), req.DeckID); err != nil {
			s.writeError(w, r, err)
			return
		}
		existing, err := s.db.FindSourceByPath(r.Context(), path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if existing != nil {
			s.writeError(w, r, fmt.Errorf("%w: %s", errSourceExists, path))
			return
		}

		sourceType := req.Type
		if sourceType == "" {
			sourceType = sync.SourceType(path)
		}
		id, err := s.db.InsertSource(r.Context(), req.DeckID, path, sourceType)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.log.Info("Source added", "source_id", id, "type", sourceType, "path", path)
		writeJSON(w, http.StatusCreated, sourceJSON{ID: id, DeckID: req.DeckID, Path: path, Type: sourceType})
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid source ID", errBadRequest))
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and returns its report with
// the updated source list.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.syncer.Run(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sources, err := s.sourceList(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, syncJSON{Report: report, Sources: sources})
	}
}
