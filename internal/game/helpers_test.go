package game

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/session"
	"github.com/npezzotti/go-mystery/internal/stats"
	"github.com/npezzotti/go-mystery/internal/testutil"
	"github.com/npezzotti/go-mystery/internal/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *database.MemoryStore) {
	t.Helper()

	log := testutil.TestLogger(t)
	tickers := &database.ManualTickers{}
	store := database.NewMemoryStore(log, database.MemoryStoreOptions{NewTicker: tickers.NewTicker})
	t.Cleanup(func() { store.Close() })

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()

	svc := NewService(store, log, su)
	svc.now = func() time.Time { return testNow }

	n := 0
	svc.newRoomCode = func() (string, error) {
		n++
		return fmt.Sprintf("ROOM%02d", n), nil
	}
	return svc, store
}

func newSession(id, name string, character int) session.Session {
	c := character
	return session.Session{Identity: session.Identity{PlayerId: id, Name: name, CharacterId: &c}}
}

var roomsSetUp = map[*Service]int{}

// setupRoom creates a room hosted by the first of n players and joins the
// rest. Player i plays character i+1.
func setupRoom(t *testing.T, svc *Service, n int) (string, []session.Session) {
	t.Helper()
	ctx := context.Background()

	// player ids are unique per store, so later rooms get a prefix
	roomsSetUp[svc]++
	prefix := ""
	if roomsSetUp[svc] > 1 {
		prefix = fmt.Sprintf("r%d", roomsSetUp[svc])
	}

	sessions := make([]session.Session, n)
	for i := range sessions {
		sessions[i] = newSession(fmt.Sprintf("%sp%d", prefix, i+1), fmt.Sprintf("Player %d", i+1), i+1)
	}

	room, _, err := svc.CreateRoom(ctx, sessions[0])
	require.NoError(t, err)

	for _, sess := range sessions[1:] {
		_, err := svc.JoinRoom(ctx, sess, room.Id)
		require.NoError(t, err)
	}
	for i := range sessions {
		sessions[i] = sessions[i].EnterRoom(room.Id)
	}
	return room.Id, sessions
}

// advanceTo moves roomId forward as the host until it reaches target.
func advanceTo(t *testing.T, svc *Service, store database.Store, host session.Session, roomId string, target types.Phase) {
	t.Helper()
	ctx := context.Background()

	for {
		room, err := store.GetRoom(ctx, roomId)
		require.NoError(t, err)
		if room.Phase == target {
			return
		}
		require.Less(t, Index(room.Phase), Index(target), "room is past %s", target)

		if _, ok := ConfigFor(room.Phase); ok {
			finishInvestigation(t, store, roomId, room.Phase)
		}
		_, err = svc.Advance(ctx, host, roomId, room.Phase)
		require.NoError(t, err)
	}
}

// finishInvestigation hands every player the phase's completion flag.
func finishInvestigation(t *testing.T, store database.Store, roomId string, phase types.Phase) {
	t.Helper()
	ctx := context.Background()

	cfg, _ := ConfigFor(phase)
	players, err := store.GetPlayers(ctx, roomId)
	require.NoError(t, err)
	for _, p := range players {
		if p.HasItem(cfg.Flag) {
			continue
		}
		items := append(p.Items, cfg.Flag)
		require.NoError(t, store.UpdatePlayer(ctx, p.Id, database.PlayerUpdate{Items: items}))
	}
}
