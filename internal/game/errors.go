package game

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrCharacterTaken    = errors.New("character already taken")
	ErrCharacterInvalid  = errors.New("character cannot be played")
	ErrCharacterLocked   = errors.New("leave the room to change character")
	ErrNameRequired      = errors.New("name is required")
	ErrCharacterRequired = errors.New("character is required")
	ErrNotHost           = errors.New("only the host can do that")
	ErrNoPlayers         = errors.New("room has no players")
	ErrInvalidPhase      = errors.New("not allowed in the current phase")
	ErrFinalPhase        = errors.New("game is already over")
	ErrLocationUnknown   = errors.New("location cannot be searched")
	ErrLocationExhausted = errors.New("location has nothing left to find")
	ErrQuotaReached      = errors.New("search quota reached")
	ErrNotJoined         = errors.New("player has not joined the room")
	ErrIncompleteBallot  = errors.New("every vote field must be chosen")
	ErrInvalidBallot     = errors.New("vote field out of range")
	ErrAlreadyVoted      = errors.New("player has already voted")
	ErrBarrierNotMet     = errors.New("not every player has finished investigating")
	ErrNoSession         = errors.New("no player identity")
	ErrWriteFailed       = errors.New("write failed, nothing changed")
)
