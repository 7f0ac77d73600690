package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/conorfennell/flashdeck/internal/domain"
)

func (s *Server) liveDeck(ctx context.Context, id string) (*domain.Deck, error) {
	deck, err := s.db.GetDeck(ctx, id)
	if err != nil {
		return nil, err
	}
	if deck == nil || deck.Deleted() {
		return nil, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	return deck, nil
}

func (s *Server) liveCard(ctx context.Context, id string) (*domain.Card, error) {
	card, err := s.db.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if card == nil || card.Deleted() {
		return nil, fmt.Errorf("%w: %s", domain.ErrCardNotFound, id)
	}
	return card, nil
}

// handleListDecks returns all live decks.
func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.db.ListDecks(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make([]deckJSON, len(decks))
		for i, d := range decks {
			out[i] = newDeckJSON(d)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleCreateDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deckRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		deck := domain.NewDeck(req.Name, req.Language, s.clock())
		if req.CardsPerSession > 0 {
			deck.CardsPerSession = req.CardsPerSession
		}
		if err := deck.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.db.CreateDeck(r.Context(), deck); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.log.Info("Deck created", "deck_id", deck.ID, "name", deck.Name)
		writeJSON(w, http.StatusCreated, newDeckJSON(deck))
	}
}

func (s *Server) handleUpdateDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deckRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		deck, err := s.liveDeck(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		deck.Name = strings.TrimSpace(req.Name)
		deck.Language = strings.TrimSpace(req.Language)
		if req.CardsPerSession > 0 {
			deck.CardsPerSession = req.CardsPerSession
		}
		deck.UpdatedAt = s.clock()
		if err := deck.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.db.UpdateDeck(r.Context(), *deck); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newDeckJSON(*deck))
	}
}

// handleDeleteDeck soft-deletes a deck together with its cards.
func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.db.DeleteDeck(r.Context(), id, s.clock()); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.log.Info("Deck deleted", "deck_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, err := s.liveDeck(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cards, err := s.db.ListCards(r.Context(), deck.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newCardsJSON(cards))
	}
}

func (s *Server) handleCreateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		deck, err := s.liveDeck(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		card := domain.NewCard(deck.ID, domain.CardType(req.Type), req.Data, s.clock())
		if err := card.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.db.CreateCard(r.Context(), card); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newCardJSON(card))
	}
}

// handleUpdateCard replaces a card's content. Its scheduling state is kept.
func (s *Server) handleUpdateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		card, err := s.liveCard(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		card.Type = domain.CardType(req.Type)
		card.Data = req.Data.Normalized()
		card.UpdatedAt = s.clock()
		if err := card.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.db.UpdateCardContent(r.Context(), card); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newCardJSON(*card))
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.DeleteCard(r.Context(), r.PathValue("id"), s.clock()); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
