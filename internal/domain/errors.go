package domain

import "errors"

// Domain errors shared by the storage, study and web layers.
var (
	ErrDeckNotFound     = errors.New("deck not found")
	ErrCardNotFound     = errors.New("card not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSourceNotFound   = errors.New("source not found")
	ErrInvalidDeck      = errors.New("invalid deck")
	ErrInvalidCard      = errors.New("invalid card")
	ErrInvalidSession   = errors.New("invalid session")
	ErrCardConflict     = errors.New("card was modified by a concurrent review")
	ErrSessionCompleted = errors.New("session already completed")
	ErrCardNotInSession = errors.New("card does not belong to session")
)

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDeckNotFound) ||
		errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSourceNotFound)
}
