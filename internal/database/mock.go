package database

import (
	"context"

	"github.com/npezzotti/go-mystery/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockStore) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockStore) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockStore) UpdateRoom(ctx context.Context, roomId string, update RoomUpdate) error {
	args := m.Called(ctx, roomId, update)
	return args.Error(0)
}
func (m *MockStore) JoinRoom(ctx context.Context, params JoinRoomParams) (types.Player, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.Player), args.Error(1)
}
func (m *MockStore) GetPlayers(ctx context.Context, roomId string) ([]types.Player, error) {
	args := m.Called(ctx, roomId)
	if players, ok := args.Get(0).([]types.Player); ok {
		return players, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStore) UpdatePlayer(ctx context.Context, playerId string, update PlayerUpdate) error {
	args := m.Called(ctx, playerId, update)
	return args.Error(0)
}
func (m *MockStore) SubmitVote(ctx context.Context, params SubmitVoteParams) (types.Vote, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.Vote), args.Error(1)
}
func (m *MockStore) DeleteVote(ctx context.Context, roomId, playerId string) error {
	args := m.Called(ctx, roomId, playerId)
	return args.Error(0)
}
func (m *MockStore) GetVotes(ctx context.Context, roomId string) ([]types.Vote, error) {
	args := m.Called(ctx, roomId)
	if votes, ok := args.Get(0).([]types.Vote); ok {
		return votes, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStore) SendChatMessage(ctx context.Context, params ChatMessageParams) (types.ChatMessage, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.ChatMessage), args.Error(1)
}
func (m *MockStore) GetChatMessages(ctx context.Context, roomId string) ([]types.ChatMessage, error) {
	args := m.Called(ctx, roomId)
	if msgs, ok := args.Get(0).([]types.ChatMessage); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStore) SubscribeToRoom(roomId string, onChange func(types.Room)) Subscription {
	args := m.Called(roomId, onChange)
	return args.Get(0).(Subscription)
}
func (m *MockStore) SubscribeToPlayers(roomId string, onChange func([]types.Player)) Subscription {
	args := m.Called(roomId, onChange)
	return args.Get(0).(Subscription)
}
func (m *MockStore) SubscribeToVotes(roomId string, onChange func([]types.Vote)) Subscription {
	args := m.Called(roomId, onChange)
	return args.Get(0).(Subscription)
}
func (m *MockStore) SubscribeToChat(roomId string, onChange func(types.ChatMessage)) Subscription {
	args := m.Called(roomId, onChange)
	return args.Get(0).(Subscription)
}

type MockSubscription struct {
	mock.Mock
}

func (m *MockSubscription) Unsubscribe() {
	m.Called()
}
