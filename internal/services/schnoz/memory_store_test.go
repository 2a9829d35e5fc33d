package schnoz

import (
	"fmt"
	"time"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// memoryStore はテスト用のインメモリStore実装です。
// 読み取りはコピーを返し、書き込みは内部状態を更新します。
type memoryStore struct {
	match        *models.Match
	settings     *models.GameSettings
	gameMap      *models.Map
	participants []*models.Participant
	tiles        map[string]*models.TileWithUnit
	unitSeq      int
}

// newTestStore はテスト用のマッチ一式を構築します。
// 盤面は size×size、中央に MAIN_BUILDING、中央とその8近傍が可視です。
func newTestStore(size int, maxTurns int) *memoryStore {
	store := &memoryStore{
		match: &models.Match{
			ID:          "match-1",
			Status:      models.MatchStatusCreated,
			Turn:        0,
			CreatedByID: "user-1",
			CreatedAt:   time.Now(),
		},
		settings: &models.GameSettings{
			MatchID:   "match-1",
			MaxTurns:  maxTurns,
			MapSize:   size,
			RulesetID: "standard",
		},
		gameMap: &models.Map{
			ID:      "map-1",
			MatchID: "match-1",
			Size:    size,
		},
		participants: []*models.Participant{
			{ID: "p1", MatchID: "match-1", UserID: "user-1", PlayerNumber: 0},
			{ID: "p2", MatchID: "match-1", UserID: "user-2", PlayerNumber: 1},
		},
		tiles: make(map[string]*models.TileWithUnit),
	}

	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			tile := &models.TileWithUnit{
				Tile: models.Tile{MapID: "map-1", Row: row, Col: col},
			}
			store.tiles[schnoz.BuildTileLookupID(tile.Coordinate())] = tile
		}
	}

	center := schnoz.Coordinate{Row: size / 2, Col: size / 2}
	centerTile := store.tiles[schnoz.BuildTileLookupID(center)]
	centerTile.Unit = &models.Unit{ID: "main-building", OwnerID: "p1", Type: models.UnitTypeMainBuilding}
	centerTile.Visible = true
	for _, adjacent := range schnoz.AdjacentCoordinates(center) {
		if tile, ok := store.tiles[schnoz.BuildTileLookupID(adjacent)]; ok {
			tile.Visible = true
		}
	}
	return store
}

// setStarted はマッチを開始済みの状態にします。
func (s *memoryStore) setStarted(turn int, activeID string, openCards ...schnoz.ConstellationID) {
	now := time.Now()
	s.match.Status = models.MatchStatusStarted
	s.match.Turn = turn
	s.match.ActivePlayerID = &activeID
	s.match.OpenCards = openCards
	s.match.StartedAt = &now
}

func (s *memoryStore) setTerrain(coordinate schnoz.Coordinate, terrain models.Terrain) {
	s.tiles[schnoz.BuildTileLookupID(coordinate)].Terrain = &terrain
}

func (s *memoryStore) unitAt(coordinate schnoz.Coordinate) *models.Unit {
	return s.tiles[schnoz.BuildTileLookupID(coordinate)].Unit
}

func (s *memoryStore) MatchByID(matchID string) (*models.Match, error) {
	if matchID != s.match.ID {
		return nil, fmt.Errorf("match %s not found", matchID)
	}
	copied := *s.match
	copied.OpenCards = append([]schnoz.ConstellationID{}, s.match.OpenCards...)
	return &copied, nil
}

func (s *memoryStore) GameSettingsByMatchID(matchID string) (*models.GameSettings, error) {
	copied := *s.settings
	return &copied, nil
}

func (s *memoryStore) MapByMatchID(matchID string) (*models.Map, error) {
	copied := *s.gameMap
	return &copied, nil
}

func (s *memoryStore) ParticipantsByMatchID(matchID string) ([]*models.Participant, error) {
	participants := make([]*models.Participant, len(s.participants))
	for i, participant := range s.participants {
		copied := *participant
		participants[i] = &copied
	}
	return participants, nil
}

func (s *memoryStore) TilesWithUnitsByMapID(mapID string) ([]*models.TileWithUnit, error) {
	tiles := make([]*models.TileWithUnit, 0, len(s.tiles))
	for _, tile := range s.tiles {
		copied := *tile
		if tile.Unit != nil {
			unit := *tile.Unit
			copied.Unit = &unit
		}
		tiles = append(tiles, &copied)
	}
	return tiles, nil
}

func (s *memoryStore) MatchRichByID(matchID string) (*models.MatchRich, error) {
	match, err := s.MatchByID(matchID)
	if err != nil {
		return nil, err
	}
	settings, _ := s.GameSettingsByMatchID(matchID)
	gameMap, _ := s.MapByMatchID(matchID)
	participants, _ := s.ParticipantsByMatchID(matchID)
	tiles, _ := s.TilesWithUnitsByMapID(gameMap.ID)
	return &models.MatchRich{
		Match:          match,
		GameSettings:   settings,
		Map:            gameMap,
		TilesWithUnits: tiles,
		Players:        participants,
	}, nil
}

func (s *memoryStore) UpdateMatch(match *models.Match) (*models.Match, error) {
	copied := *match
	copied.OpenCards = append([]schnoz.ConstellationID{}, match.OpenCards...)
	s.match = &copied
	return match, nil
}

func (s *memoryStore) UpdateGameSettings(matchID string, update models.GameSettingsUpdate) (*models.GameSettings, error) {
	if update.MaxTurns != nil {
		s.settings.MaxTurns = *update.MaxTurns
	}
	if update.MapSize != nil {
		s.settings.MapSize = *update.MapSize
	}
	if update.RulesetID != nil {
		s.settings.RulesetID = *update.RulesetID
	}
	copied := *s.settings
	return &copied, nil
}

func (s *memoryStore) UpdateParticipantScore(participantID string, score int, bonusPoints int) (*models.Participant, error) {
	for _, participant := range s.participants {
		if participant.ID == participantID {
			participant.Score = score
			participant.BonusPoints = bonusPoints
			copied := *participant
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("participant %s not found", participantID)
}

func (s *memoryStore) CreateUnit(mapID string, coordinate schnoz.Coordinate, ownerID string, unitType models.UnitType) (*models.TileWithUnit, error) {
	tile, ok := s.tiles[schnoz.BuildTileLookupID(coordinate)]
	if !ok {
		return nil, fmt.Errorf("tile (%d,%d) not found", coordinate.Row, coordinate.Col)
	}
	s.unitSeq++
	tile.Unit = &models.Unit{
		ID:      fmt.Sprintf("unit-%d", s.unitSeq),
		OwnerID: ownerID,
		Type:    unitType,
	}
	copied := *tile
	return &copied, nil
}

func (s *memoryStore) RevealTile(mapID string, coordinate schnoz.Coordinate) (*models.TileWithUnit, error) {
	tile, ok := s.tiles[schnoz.BuildTileLookupID(coordinate)]
	if !ok {
		return nil, fmt.Errorf("tile (%d,%d) not found", coordinate.Row, coordinate.Col)
	}
	tile.Visible = true
	copied := *tile
	return &copied, nil
}

func (s *memoryStore) CreateMatch(userID string, settings *models.GameSettings) (*models.MatchRich, error) {
	return nil, fmt.Errorf("not supported in memory store")
}

func (s *memoryStore) AddParticipant(matchID string, userID string) (*models.Participant, error) {
	participant := &models.Participant{
		ID:           fmt.Sprintf("p%d", len(s.participants)+1),
		MatchID:      matchID,
		UserID:       userID,
		PlayerNumber: len(s.participants),
	}
	s.participants = append(s.participants, participant)
	copied := *participant
	return &copied, nil
}

func (s *memoryStore) Transact(fn func(database.Store) error) error {
	return fn(s)
}
