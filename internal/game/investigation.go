package game

import (
	"context"
	"fmt"
	"slices"

	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/scenario"
	"github.com/npezzotti/go-mystery/internal/session"
	"github.com/npezzotti/go-mystery/internal/stats"
	"github.com/npezzotti/go-mystery/internal/types"
	"go.uber.org/zap"
)

// InvestigationConfig is the search policy of one investigation phase.
type InvestigationConfig struct {
	Phase types.Phase `json:"phase"`
	// TargetStage selects the catalog items in play.
	TargetStage int `json:"target_stage"`
	// MaxSearchesPerLocation caps how many items a location yields to the
	// whole room.
	MaxSearchesPerLocation int `json:"max_searches_per_location"`
	// MaxSelectable is each player's personal quota.
	MaxSelectable int `json:"max_selectable"`
	Flag          int `json:"flag"`
}

var investigations = map[types.Phase]InvestigationConfig{
	types.PhaseInvestigation1: {
		Phase:                  types.PhaseInvestigation1,
		TargetStage:            1,
		MaxSearchesPerLocation: 2,
		MaxSelectable:          2,
		Flag:                   scenario.Investigation1Flag,
	},
	types.PhaseInvestigation2: {
		Phase:                  types.PhaseInvestigation2,
		TargetStage:            2,
		MaxSearchesPerLocation: 1,
		MaxSelectable:          1,
		Flag:                   scenario.Investigation2Flag,
	},
}

func ConfigFor(p types.Phase) (InvestigationConfig, bool) {
	cfg, ok := investigations[p]
	return cfg, ok
}

// FoundItems is the union of every player's items: the room's consumed pool.
func FoundItems(players []types.Player) map[int]bool {
	found := make(map[int]bool)
	for _, p := range players {
		for _, item := range p.Items {
			found[item] = true
		}
	}
	return found
}

// foundAt counts the stage items of loc already in the room's pool.
func foundAt(loc scenario.Location, stage int, found map[int]bool) int {
	n := 0
	for _, item := range scenario.StageItems(loc, stage) {
		if found[item.Id] {
			n++
		}
	}
	return n
}

// stageItemCount counts the catalog items of stage that p holds. Flags are
// not catalog items and never count.
func stageItemCount(p types.Player, stage int) int {
	n := 0
	for _, id := range p.Items {
		if item, ok := scenario.ItemById(id); ok && item.Stage == stage {
			n++
		}
	}
	return n
}

func Finished(p types.Player, cfg InvestigationConfig) bool {
	return p.HasItem(cfg.Flag)
}

// AllPlayersFinished is the barrier for leaving an investigation phase.
func AllPlayersFinished(players []types.Player, cfg InvestigationConfig) bool {
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if !Finished(p, cfg) {
			return false
		}
	}
	return true
}

// SearchResult is the outcome of one search action.
type SearchResult struct {
	LocationId int            `json:"location_id"`
	Item       *scenario.Item `json:"item"`
	Completed  bool           `json:"completed"`
	Player     types.Player   `json:"player"`
}

// ResolveSearch applies one search by playerId at locationId to the
// replicated player list and returns the player's new state. It never
// mutates players.
func ResolveSearch(cfg InvestigationConfig, players []types.Player, playerId string, locationId int) (SearchResult, error) {
	idx := slices.IndexFunc(players, func(p types.Player) bool { return p.Id == playerId })
	if idx < 0 {
		return SearchResult{}, ErrNotJoined
	}

	loc, ok := scenario.LocationById(locationId)
	if !ok || !loc.Searchable {
		return SearchResult{}, ErrLocationUnknown
	}

	found := FoundItems(players)
	if foundAt(loc, cfg.TargetStage, found) >= cfg.MaxSearchesPerLocation {
		return SearchResult{}, ErrLocationExhausted
	}

	player := players[idx]
	if Finished(player, cfg) || stageItemCount(player, cfg.TargetStage) >= cfg.MaxSelectable {
		return SearchResult{}, ErrQuotaReached
	}

	player.Items = slices.Clone(player.Items)
	player.Searches = copySearches(player.Searches)

	res := SearchResult{LocationId: locationId}
	for _, item := range scenario.StageItems(loc, cfg.TargetStage) {
		if !found[item.Id] {
			item := item
			res.Item = &item
			player.Items = append(player.Items, item.Id)
			break
		}
	}

	// an empty yield still counts as a search, but only items earn the flag
	player.Searches[cfg.TargetStage]++
	if stageItemCount(player, cfg.TargetStage) >= cfg.MaxSelectable {
		player.Items = append(player.Items, cfg.Flag)
		res.Completed = true
	}

	res.Player = player
	return res, nil
}

func copySearches(s types.Searches) types.Searches {
	c := make(types.Searches, len(s)+1)
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Search performs one search for the session's player. The player list is
// re-read immediately before the write, but the read-modify-write is not
// atomic: two players racing for the last item at a location can both get
// it.
func (s *Service) Search(ctx context.Context, sess session.Session, roomId string, locationId int) (SearchResult, error) {
	room, players, err := s.member(ctx, sess, roomId)
	if err != nil {
		return SearchResult{}, err
	}

	cfg, ok := ConfigFor(room.Phase)
	if !ok {
		return SearchResult{}, ErrInvalidPhase
	}

	res, err := ResolveSearch(cfg, players, sess.PlayerId, locationId)
	if err != nil {
		return SearchResult{}, err
	}

	err = s.store.UpdatePlayer(ctx, sess.PlayerId, database.PlayerUpdate{
		Items:    res.Player.Items,
		Searches: res.Player.Searches,
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("%w: update player: %w", ErrWriteFailed, err)
	}

	s.stats.Incr(stats.NumSearches)

	fields := []zap.Field{
		zap.String("room", roomId),
		zap.String("player", sess.PlayerId),
		zap.Int("location", locationId),
		zap.Bool("completed", res.Completed),
	}
	if res.Item != nil {
		fields = append(fields, zap.Int("item", res.Item.Id))
	}
	s.log.Info("search", fields...)

	return res, nil
}

// LocationStatus is what the investigation screen shows per location.
type LocationStatus struct {
	Id         int    `json:"id"`
	Name       string `json:"name"`
	Searchable bool   `json:"searchable"`
	Found      int    `json:"found"`
	Cap        int    `json:"cap"`
	Exhausted  bool   `json:"exhausted"`
}

func LocationStatuses(cfg InvestigationConfig, players []types.Player) []LocationStatus {
	found := FoundItems(players)

	statuses := make([]LocationStatus, 0, len(scenario.Locations))
	for _, loc := range scenario.Locations {
		st := LocationStatus{
			Id:         loc.Id,
			Name:       loc.Name,
			Searchable: loc.Searchable,
			Cap:        cfg.MaxSearchesPerLocation,
		}
		if loc.Searchable {
			st.Found = foundAt(loc, cfg.TargetStage, found)
			st.Exhausted = st.Found >= cfg.MaxSearchesPerLocation
		}
		statuses = append(statuses, st)
	}
	return statuses
}

type PlayerProgress struct {
	PlayerId string `json:"player_id"`
	Name     string `json:"name"`
	Searches int    `json:"searches"`
	Done     bool   `json:"done"`
}

func Progress(cfg InvestigationConfig, players []types.Player) []PlayerProgress {
	progress := make([]PlayerProgress, 0, len(players))
	for _, p := range players {
		progress = append(progress, PlayerProgress{
			PlayerId: p.Id,
			Name:     p.Name,
			Searches: p.Searches[cfg.TargetStage],
			Done:     Finished(p, cfg),
		})
	}
	return progress
}

// InvestigationState is the investigation screen for one player.
type InvestigationState struct {
	Config        InvestigationConfig `json:"config"`
	Locations     []LocationStatus    `json:"locations"`
	Progress      []PlayerProgress    `json:"progress"`
	Items         []scenario.Item     `json:"items"`
	Finished      bool                `json:"finished"`
	AllFinished   bool                `json:"all_finished"`
	CanReturn     bool                `json:"can_return"`
	WaitingOnHost bool                `json:"waiting_on_host"`
}

func (s *Service) Investigation(ctx context.Context, sess session.Session, roomId string) (InvestigationState, error) {
	room, players, err := s.member(ctx, sess, roomId)
	if err != nil {
		return InvestigationState{}, err
	}

	cfg, ok := ConfigFor(room.Phase)
	if !ok {
		return InvestigationState{}, ErrInvalidPhase
	}

	st := InvestigationState{
		Config:      cfg,
		Locations:   LocationStatuses(cfg, players),
		Progress:    Progress(cfg, players),
		Items:       []scenario.Item{},
		AllFinished: AllPlayersFinished(players, cfg),
	}

	for _, p := range players {
		if p.Id != sess.PlayerId {
			continue
		}
		st.Finished = Finished(p, cfg)
		for _, id := range p.Items {
			if item, ok := scenario.ItemById(id); ok {
				st.Items = append(st.Items, item)
			}
		}
	}

	host := IsHost(room, sess.PlayerId)
	st.CanReturn = st.AllFinished && host
	st.WaitingOnHost = st.AllFinished && !host
	return st, nil
}

// FinishInvestigation returns the room to discussion once every player holds
// the phase's completion flag. Host only.
func (s *Service) FinishInvestigation(ctx context.Context, sess session.Session, roomId string) (types.Room, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}

	cfg, ok := ConfigFor(room.Phase)
	if !ok {
		return types.Room{}, ErrInvalidPhase
	}
	if !CanAdvance(room, sess.PlayerId) {
		return types.Room{}, ErrNotHost
	}

	players, err := s.store.GetPlayers(ctx, roomId)
	if err != nil {
		return types.Room{}, fmt.Errorf("get players: %w", err)
	}
	if !AllPlayersFinished(players, cfg) {
		return types.Room{}, ErrBarrierNotMet
	}

	next, _ := Next(room.Phase)
	return s.transition(ctx, room, next)
}
