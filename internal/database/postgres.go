package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/npezzotti/go-mystery/internal/types"
	"go.uber.org/zap"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore is the durable Store. Change notifications arrive over
// LISTEN/NOTIFY and are re-read before being delivered.
type PostgresStore struct {
	conn     *sqlx.DB
	log      *zap.Logger
	notifier *notifier
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string, log *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	n, err := newNotifier(dsn, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &PostgresStore{conn: db, log: log, notifier: n}, nil
}

// DB exposes the underlying handle for migrations.
func (s *PostgresStore) DB() *sql.DB {
	return s.conn.DB
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.notifier != nil {
		s.notifier.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *PostgresStore) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	var room types.Room
	err := s.conn.QueryRowxContext(ctx,
		"INSERT INTO rooms (id, phase, host_id, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, phase, timer_start, host_id, created_at",
		params.Id,
		types.PhaseWaiting,
		params.HostId,
		time.Now().UTC(),
	).StructScan(&room)

	return room, mapError(err)
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	var room types.Room
	err := s.conn.GetContext(ctx, &room,
		"SELECT id, phase, timer_start, host_id, created_at FROM rooms "+
			"WHERE id = $1 LIMIT 1",
		roomId,
	)

	return room, mapError(err)
}

func (s *PostgresStore) UpdateRoom(ctx context.Context, roomId string, update RoomUpdate) error {
	var (
		sets []string
		args = []any{roomId}
	)
	if update.Phase != nil {
		args = append(args, *update.Phase)
		sets = append(sets, "phase = $"+strconv.Itoa(len(args)))
	}
	if update.TimerStart != nil {
		args = append(args, update.TimerStart.UTC())
		sets = append(sets, "timer_start = $"+strconv.Itoa(len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	res, err := s.conn.ExecContext(ctx,
		"UPDATE rooms SET "+strings.Join(sets, ", ")+" WHERE id = $1",
		args...,
	)
	if err != nil {
		return mapError(err)
	}

	return requireRow(res)
}

type playerRow struct {
	Id          string         `db:"id"`
	RoomId      string         `db:"room_id"`
	Name        string         `db:"name"`
	CharacterId sql.NullInt64  `db:"character_id"`
	Items       pq.Int64Array  `db:"items"`
	Searches    searchesColumn `db:"searches"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r playerRow) toPlayer() types.Player {
	p := types.Player{
		Id:        r.Id,
		RoomId:    r.RoomId,
		Name:      r.Name,
		Items:     make([]int, 0, len(r.Items)),
		Searches:  types.Searches(r.Searches),
		CreatedAt: r.CreatedAt,
	}
	if r.CharacterId.Valid {
		c := int(r.CharacterId.Int64)
		p.CharacterId = &c
	}
	for _, item := range r.Items {
		p.Items = append(p.Items, int(item))
	}
	if p.Searches == nil {
		p.Searches = types.Searches{}
	}
	return p
}

const playerColumns = "id, room_id, name, character_id, items, searches, created_at"

func (s *PostgresStore) JoinRoom(ctx context.Context, params JoinRoomParams) (types.Player, error) {
	var character sql.NullInt64
	if params.CharacterId != nil {
		character = sql.NullInt64{Int64: int64(*params.CharacterId), Valid: true}
	}

	var row playerRow
	err := s.conn.QueryRowxContext(ctx,
		"INSERT INTO players (id, room_id, name, character_id, items, searches, created_at) "+
			"VALUES ($1, $2, $3, $4, '{}', '{}', $5) "+
			"ON CONFLICT (id) DO UPDATE SET room_id = EXCLUDED.room_id, name = EXCLUDED.name, "+
			"character_id = EXCLUDED.character_id, items = '{}', searches = '{}' "+
			"RETURNING "+playerColumns,
		params.PlayerId,
		params.RoomId,
		params.Name,
		character,
		time.Now().UTC(),
	).StructScan(&row)
	if err != nil {
		return types.Player{}, mapError(err)
	}

	return row.toPlayer(), nil
}

func (s *PostgresStore) GetPlayers(ctx context.Context, roomId string) ([]types.Player, error) {
	var rows []playerRow
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT "+playerColumns+" FROM players WHERE room_id = $1 ORDER BY created_at, id",
		roomId,
	)
	if err != nil {
		return nil, mapError(err)
	}

	players := make([]types.Player, 0, len(rows))
	for _, r := range rows {
		players = append(players, r.toPlayer())
	}
	return players, nil
}

func (s *PostgresStore) UpdatePlayer(ctx context.Context, playerId string, update PlayerUpdate) error {
	var (
		sets []string
		args = []any{playerId}
	)
	if update.Items != nil {
		items := make(pq.Int64Array, 0, len(update.Items))
		for _, item := range update.Items {
			items = append(items, int64(item))
		}
		args = append(args, items)
		sets = append(sets, "items = $"+strconv.Itoa(len(args)))
	}
	if update.Searches != nil {
		args = append(args, searchesColumn(update.Searches))
		sets = append(sets, "searches = $"+strconv.Itoa(len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	res, err := s.conn.ExecContext(ctx,
		"UPDATE players SET "+strings.Join(sets, ", ")+" WHERE id = $1",
		args...,
	)
	if err != nil {
		return mapError(err)
	}

	return requireRow(res)
}

const voteColumns = "id, room_id, player_id, who, where_location, what_item, to_whom, created_at"

func (s *PostgresStore) SubmitVote(ctx context.Context, params SubmitVoteParams) (types.Vote, error) {
	var vote types.Vote
	err := s.conn.QueryRowxContext(ctx,
		"INSERT INTO votes ("+voteColumns+") "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING "+voteColumns,
		uuid.NewString(),
		params.RoomId,
		params.PlayerId,
		params.Who,
		params.Where,
		params.What,
		params.ToWhom,
		time.Now().UTC(),
	).StructScan(&vote)

	return vote, mapError(err)
}

func (s *PostgresStore) DeleteVote(ctx context.Context, roomId, playerId string) error {
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM votes WHERE room_id = $1 AND player_id = $2",
		roomId,
		playerId,
	)

	return mapError(err)
}

func (s *PostgresStore) GetVotes(ctx context.Context, roomId string) ([]types.Vote, error) {
	votes := []types.Vote{}
	err := s.conn.SelectContext(ctx, &votes,
		"SELECT "+voteColumns+" FROM votes WHERE room_id = $1 ORDER BY created_at, id",
		roomId,
	)

	return votes, mapError(err)
}

const chatColumns = "id, room_id, player_id, player_name, character_name, content, created_at"

func (s *PostgresStore) SendChatMessage(ctx context.Context, params ChatMessageParams) (types.ChatMessage, error) {
	var msg types.ChatMessage
	err := s.conn.QueryRowxContext(ctx,
		"INSERT INTO chat_messages ("+chatColumns+") "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+chatColumns,
		uuid.NewString(),
		params.RoomId,
		params.PlayerId,
		params.PlayerName,
		params.CharacterName,
		params.Content,
		time.Now().UTC(),
	).StructScan(&msg)

	return msg, mapError(err)
}

func (s *PostgresStore) GetChatMessages(ctx context.Context, roomId string) ([]types.ChatMessage, error) {
	msgs := []types.ChatMessage{}
	err := s.conn.SelectContext(ctx, &msgs,
		"SELECT "+chatColumns+" FROM chat_messages WHERE room_id = $1 ORDER BY created_at, id",
		roomId,
	)

	return msgs, mapError(err)
}

func (s *PostgresStore) getChatMessage(ctx context.Context, id string) (types.ChatMessage, error) {
	var msg types.ChatMessage
	err := s.conn.GetContext(ctx, &msg,
		"SELECT "+chatColumns+" FROM chat_messages WHERE id = $1",
		id,
	)

	return msg, mapError(err)
}

func (s *PostgresStore) SubscribeToRoom(roomId string, onChange func(types.Room)) Subscription {
	return s.notifier.subscribe(topic{table: "rooms", roomId: roomId}, func(ctx context.Context, _ change) {
		room, err := s.GetRoom(ctx, roomId)
		if err != nil {
			s.log.Warn("reload room", zap.String("room", roomId), zap.Error(err))
			return
		}
		onChange(room)
	})
}

func (s *PostgresStore) SubscribeToPlayers(roomId string, onChange func([]types.Player)) Subscription {
	return s.notifier.subscribe(topic{table: "players", roomId: roomId}, func(ctx context.Context, _ change) {
		players, err := s.GetPlayers(ctx, roomId)
		if err != nil {
			s.log.Warn("reload players", zap.String("room", roomId), zap.Error(err))
			return
		}
		onChange(players)
	})
}

func (s *PostgresStore) SubscribeToVotes(roomId string, onChange func([]types.Vote)) Subscription {
	return s.notifier.subscribe(topic{table: "votes", roomId: roomId}, func(ctx context.Context, _ change) {
		votes, err := s.GetVotes(ctx, roomId)
		if err != nil {
			s.log.Warn("reload votes", zap.String("room", roomId), zap.Error(err))
			return
		}
		onChange(votes)
	})
}

// SubscribeToChat fires once per inserted message.
func (s *PostgresStore) SubscribeToChat(roomId string, onMessage func(types.ChatMessage)) Subscription {
	return s.notifier.subscribe(topic{table: "chat_messages", roomId: roomId}, func(ctx context.Context, c change) {
		if c.Op != "INSERT" {
			return
		}
		msg, err := s.getChatMessage(ctx, c.Id)
		if err != nil {
			s.log.Warn("reload chat message", zap.String("id", c.Id), zap.Error(err))
			return
		}
		onMessage(msg)
	})
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mapError converts driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Constraint)
		}
	}
	return err
}

// searchesColumn stores types.Searches as jsonb.
type searchesColumn types.Searches

func (c searchesColumn) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[int]int(c))
	return b, err
}

func (c *searchesColumn) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*c = searchesColumn{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("searches: unsupported type %T", src)
	}

	m := map[int]int{}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("searches: %w", err)
	}
	*c = searchesColumn(m)
	return nil
}
