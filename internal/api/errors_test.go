package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/stretchr/testify/assert"
)

func Test_fromGameError(t *testing.T) {
	tcases := []struct {
		err      error
		wantCode int
	}{
		{err: game.ErrNoSession, wantCode: http.StatusUnauthorized},
		{err: game.ErrNameRequired, wantCode: http.StatusBadRequest},
		{err: game.ErrCharacterInvalid, wantCode: http.StatusBadRequest},
		{err: game.ErrLocationUnknown, wantCode: http.StatusBadRequest},
		{err: game.ErrIncompleteBallot, wantCode: http.StatusBadRequest},
		{err: game.ErrNotHost, wantCode: http.StatusForbidden},
		{err: game.ErrNotJoined, wantCode: http.StatusForbidden},
		{err: game.ErrRoomNotFound, wantCode: http.StatusNotFound},
		{err: game.ErrRoomFull, wantCode: http.StatusConflict},
		{err: game.ErrCharacterTaken, wantCode: http.StatusConflict},
		{err: game.ErrCharacterLocked, wantCode: http.StatusConflict},
		{err: game.ErrInvalidPhase, wantCode: http.StatusConflict},
		{err: game.ErrQuotaReached, wantCode: http.StatusConflict},
		{err: game.ErrAlreadyVoted, wantCode: http.StatusConflict},
		{err: game.ErrBarrierNotMet, wantCode: http.StatusConflict},
		{err: fmt.Errorf("%w: update room: %w", game.ErrWriteFailed, errors.New("boom")), wantCode: http.StatusInternalServerError},
		{err: errors.New("unexpected"), wantCode: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			apiErr := fromGameError(tc.err)
			assert.Equal(t, tc.wantCode, apiErr.StatusCode)
			assert.ErrorIs(t, apiErr, tc.err)

			if tc.wantCode == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", apiErr.Message, "expected internals to stay hidden")
			} else {
				assert.Equal(t, tc.err.Error(), apiErr.Message)
			}
		})
	}
}

func TestApiError_Error(t *testing.T) {
	assert.Equal(t, "not found", NewNotFoundError().Error())
	assert.Equal(t, "internal server error: boom", NewInternalServerError(errors.New("boom")).Error())
}
