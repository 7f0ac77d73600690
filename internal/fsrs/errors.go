package fsrs

import "errors"

var (
	ErrInvalidRating          = errors.New("fsrs: invalid rating")
	ErrCorruptState           = errors.New("fsrs: corrupt memory state")
	ErrReviewBeforeLastReview = errors.New("fsrs: review time precedes last review")
	ErrInvalidParams          = errors.New("fsrs: invalid parameters")
)
