package web

import (
	"net/http"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/study"
)

func (s *Server) handleDeckStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.study.DeckStats(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statsJSON(*stats))
	}
}

// handleStartSession resumes the active session of the deck or samples a
// new one from the due cards.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		mode, err := domain.ParseSessionMode(req.Mode)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		view, err := s.study.DueCardsForSession(r.Context(), r.PathValue("id"), mode, req.Limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionViewJSON(view))
	}
}

func (s *Server) handleSessionHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := s.study.SessionHistory(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make([]*sessionJSON, len(sessions))
		for i := range sessions {
			out[i] = newSessionJSON(&sessions[i])
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.study.ResumeSession(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionViewJSON(view))
	}
}

func (s *Server) handleCompleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req completeRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		session, err := s.study.CompleteSession(r.Context(), r.PathValue("id"), req.DurationSeconds)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionJSON(session))
	}
}

// handleSessionRatings returns the rating (1 to 4) given to each card of a
// completed session, keyed by card ID.
func (s *Server) handleSessionRatings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ratings, err := s.study.SessionRatings(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make(map[string]int, len(ratings))
		for id, rating := range ratings {
			out[id] = int(rating)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := s.study.RecordReview(r.Context(), study.ReviewInput{
			CardID:          r.PathValue("id"),
			Rating:          req.Rating,
			SessionID:       req.SessionID,
			DurationSeconds: req.DurationSeconds,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newReviewJSON(result))
	}
}

func (s *Server) handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		preview, err := s.study.PreviewCard(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newPreviewJSON(preview))
	}
}
