package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-mystery/internal/game"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(code int, err error) *ApiError {
	msg := lower(http.StatusText(code))
	if err != nil {
		msg = err.Error()
	}
	return &ApiError{StatusCode: code, Message: msg, Err: err}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, nil)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, nil)
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized, nil)
}

var (
	badRequestErrors = []error{
		game.ErrNameRequired, game.ErrCharacterRequired, game.ErrCharacterInvalid,
		game.ErrLocationUnknown, game.ErrIncompleteBallot, game.ErrInvalidBallot,
	}
	forbiddenErrors = []error{game.ErrNotHost, game.ErrNotJoined}
	conflictErrors  = []error{
		game.ErrRoomFull, game.ErrCharacterTaken, game.ErrCharacterLocked, game.ErrNoPlayers, game.ErrInvalidPhase,
		game.ErrFinalPhase, game.ErrLocationExhausted, game.ErrQuotaReached,
		game.ErrAlreadyVoted, game.ErrBarrierNotMet,
	}
)

// fromGameError maps a game service error to its HTTP form. Rule violations
// carry their own message; anything unrecognized is a 500.
func fromGameError(err error) *ApiError {
	is := func(targets []error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}

	switch {
	case errors.Is(err, game.ErrNoSession):
		return newApiError(http.StatusUnauthorized, err)
	case errors.Is(err, game.ErrRoomNotFound):
		return newApiError(http.StatusNotFound, err)
	case is(badRequestErrors):
		return newApiError(http.StatusBadRequest, err)
	case is(forbiddenErrors):
		return newApiError(http.StatusForbidden, err)
	case is(conflictErrors):
		return newApiError(http.StatusConflict, err)
	default:
		return NewInternalServerError(err)
	}
}
