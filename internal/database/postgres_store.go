package database

import (
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// querier は *sql.DB と *sql.Tx の共通部分です。
// Store実装はこの抽象を通じて接続・トランザクションの両方で動作します。
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// postgresStore は Store インターフェースのPostgreSQL実装です。
type postgresStore struct {
	db *sql.DB // Transact用。トランザクション内ではnil
	q  querier
}

// NewStore は DatabaseService に紐づく Store を作成します。
func NewStore(service *DatabaseService) Store {
	return &postgresStore{db: service.DB, q: service.DB}
}

// Transact は fn を1つのSQLトランザクション内で実行します。
// 既にトランザクション内の場合はそのまま fn を実行します（入れ子なし）。
func (s *postgresStore) Transact(fn func(Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// MatchByID は指定されたIDのマッチを取得します。
func (s *postgresStore) MatchByID(matchID string) (*models.Match, error) {
	match := &models.Match{}
	var openCards []string
	query := `SELECT id, status, turn, active_player_id, winner_id, open_cards, created_by_id, created_at, started_at, finished_at
	          FROM matches WHERE id = $1`
	err := s.q.QueryRow(query, matchID).Scan(
		&match.ID,
		&match.Status,
		&match.Turn,
		&match.ActivePlayerID,
		&match.WinnerID,
		pq.Array(&openCards),
		&match.CreatedByID,
		&match.CreatedAt,
		&match.StartedAt,
		&match.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("マッチ %s が見つかりません", matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("マッチの取得に失敗しました: %w", err)
	}
	match.OpenCards = toConstellationIDs(openCards)
	return match, nil
}

// GameSettingsByMatchID はマッチのゲーム設定を取得します。
func (s *postgresStore) GameSettingsByMatchID(matchID string) (*models.GameSettings, error) {
	settings := &models.GameSettings{}
	query := `SELECT match_id, max_turns, map_size, ruleset_id FROM game_settings WHERE match_id = $1`
	err := s.q.QueryRow(query, matchID).Scan(&settings.MatchID, &settings.MaxTurns, &settings.MapSize, &settings.RulesetID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("マッチ %s のゲーム設定が見つかりません", matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("ゲーム設定の取得に失敗しました: %w", err)
	}
	return settings, nil
}

// MapByMatchID はマッチの盤面を取得します。存在しない場合は nil を返します。
func (s *postgresStore) MapByMatchID(matchID string) (*models.Map, error) {
	gameMap := &models.Map{}
	query := `SELECT id, match_id, size FROM maps WHERE match_id = $1`
	err := s.q.QueryRow(query, matchID).Scan(&gameMap.ID, &gameMap.MatchID, &gameMap.Size)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("盤面の取得に失敗しました: %w", err)
	}
	return gameMap, nil
}

// ParticipantsByMatchID はマッチの参加者を席番号順に取得します。
func (s *postgresStore) ParticipantsByMatchID(matchID string) ([]*models.Participant, error) {
	query := `SELECT id, match_id, user_id, player_number, score, bonus_points
	          FROM participants WHERE match_id = $1 ORDER BY player_number ASC`
	rows, err := s.q.Query(query, matchID)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		participant := &models.Participant{}
		if err := rows.Scan(
			&participant.ID,
			&participant.MatchID,
			&participant.UserID,
			&participant.PlayerNumber,
			&participant.Score,
			&participant.BonusPoints,
		); err != nil {
			return nil, fmt.Errorf("参加者のスキャンに失敗しました: %w", err)
		}
		participants = append(participants, participant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加者のイテレーション中にエラーが発生しました: %w", err)
	}
	return participants, nil
}

// TilesWithUnitsByMapID は盤面の全タイルをユニット込みで取得します。
func (s *postgresStore) TilesWithUnitsByMapID(mapID string) ([]*models.TileWithUnit, error) {
	query := `SELECT t.map_id, t."row", t."col", t.visible, t.terrain, u.id, u.owner_id, u.type
	          FROM tiles t
	          LEFT JOIN units u ON u.map_id = t.map_id AND u."row" = t."row" AND u."col" = t."col"
	          WHERE t.map_id = $1
	          ORDER BY t."row" ASC, t."col" ASC`
	rows, err := s.q.Query(query, mapID)
	if err != nil {
		return nil, fmt.Errorf("タイルの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tiles []*models.TileWithUnit
	for rows.Next() {
		tile, err := scanTileWithUnit(rows)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, tile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タイルのイテレーション中にエラーが発生しました: %w", err)
	}
	return tiles, nil
}

// MatchRichByID はマッチの集約スナップショットを取得します。
func (s *postgresStore) MatchRichByID(matchID string) (*models.MatchRich, error) {
	match, err := s.MatchByID(matchID)
	if err != nil {
		return nil, err
	}
	settings, err := s.GameSettingsByMatchID(matchID)
	if err != nil {
		return nil, err
	}
	gameMap, err := s.MapByMatchID(matchID)
	if err != nil {
		return nil, err
	}
	players, err := s.ParticipantsByMatchID(matchID)
	if err != nil {
		return nil, err
	}
	rich := &models.MatchRich{
		Match:        match,
		GameSettings: settings,
		Map:          gameMap,
		Players:      players,
	}
	if gameMap != nil {
		tiles, err := s.TilesWithUnitsByMapID(gameMap.ID)
		if err != nil {
			return nil, err
		}
		rich.TilesWithUnits = tiles
	}
	return rich, nil
}

// UpdateMatch はマッチ行を更新します（ターン、手番、openCards、状態、勝者、時刻）。
func (s *postgresStore) UpdateMatch(match *models.Match) (*models.Match, error) {
	query := `UPDATE matches
	          SET status = $2, turn = $3, active_player_id = $4, winner_id = $5,
	              open_cards = $6, started_at = $7, finished_at = $8
	          WHERE id = $1`
	result, err := s.q.Exec(query,
		match.ID,
		match.Status,
		match.Turn,
		match.ActivePlayerID,
		match.WinnerID,
		pq.Array(toStrings(match.OpenCards)),
		match.StartedAt,
		match.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("マッチの更新に失敗しました: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, fmt.Errorf("マッチ %s が見つからないため更新できません", match.ID)
	}
	return match, nil
}

// UpdateGameSettings はゲーム設定を部分更新します。nilのフィールドは変更されません。
func (s *postgresStore) UpdateGameSettings(matchID string, update models.GameSettingsUpdate) (*models.GameSettings, error) {
	settings, err := s.GameSettingsByMatchID(matchID)
	if err != nil {
		return nil, err
	}
	if update.MaxTurns != nil {
		settings.MaxTurns = *update.MaxTurns
	}
	if update.MapSize != nil {
		settings.MapSize = *update.MapSize
	}
	if update.RulesetID != nil {
		settings.RulesetID = *update.RulesetID
	}
	query := `UPDATE game_settings SET max_turns = $2, map_size = $3, ruleset_id = $4 WHERE match_id = $1`
	if _, err := s.q.Exec(query, matchID, settings.MaxTurns, settings.MapSize, settings.RulesetID); err != nil {
		return nil, fmt.Errorf("ゲーム設定の更新に失敗しました: %w", err)
	}
	return settings, nil
}

// UpdateParticipantScore は参加者のスコアとボーナスポイントを更新します。
func (s *postgresStore) UpdateParticipantScore(participantID string, score int, bonusPoints int) (*models.Participant, error) {
	participant := &models.Participant{}
	query := `UPDATE participants SET score = $2, bonus_points = $3 WHERE id = $1
	          RETURNING id, match_id, user_id, player_number, score, bonus_points`
	err := s.q.QueryRow(query, participantID, score, bonusPoints).Scan(
		&participant.ID,
		&participant.MatchID,
		&participant.UserID,
		&participant.PlayerNumber,
		&participant.Score,
		&participant.BonusPoints,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者の更新に失敗しました: %w", err)
	}
	return participant, nil
}

// CreateUnit は指定座標のタイルにユニットを作成します（タイル単位でアトミック）。
func (s *postgresStore) CreateUnit(mapID string, coordinate schnoz.Coordinate, ownerID string, unitType models.UnitType) (*models.TileWithUnit, error) {
	unitID := uuid.New().String()
	query := `INSERT INTO units (id, map_id, "row", "col", owner_id, type) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.q.Exec(query, unitID, mapID, coordinate.Row, coordinate.Col, ownerID, unitType); err != nil {
		return nil, fmt.Errorf("ユニットの作成に失敗しました: %w", err)
	}
	return s.tileWithUnit(mapID, coordinate)
}

// RevealTile は指定座標のタイルを可視化します（タイル単位でアトミック）。
func (s *postgresStore) RevealTile(mapID string, coordinate schnoz.Coordinate) (*models.TileWithUnit, error) {
	query := `UPDATE tiles SET visible = TRUE WHERE map_id = $1 AND "row" = $2 AND "col" = $3`
	result, err := s.q.Exec(query, mapID, coordinate.Row, coordinate.Col)
	if err != nil {
		return nil, fmt.Errorf("タイルの可視化に失敗しました: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, fmt.Errorf("タイル (%d,%d) が見つかりません", coordinate.Row, coordinate.Col)
	}
	return s.tileWithUnit(mapID, coordinate)
}

// terrainRatio はセットアップ時に地形マーカーを置くタイルの割合です。
const terrainRatio = 0.12

// CreateMatch は新しいマッチ一式（マッチ、設定、盤面、タイル、作成者の参加者、
// 中央のMAIN_BUILDING）を作成します。セットアップフェーズ専用です。
func (s *postgresStore) CreateMatch(userID string, settings *models.GameSettings) (*models.MatchRich, error) {
	var rich *models.MatchRich
	err := s.Transact(func(tx Store) error {
		txStore, ok := tx.(*postgresStore)
		if !ok {
			return fmt.Errorf("予期しないStore実装です")
		}

		matchID := uuid.New().String()
		now := time.Now()
		_, err := txStore.q.Exec(
			`INSERT INTO matches (id, status, turn, open_cards, created_by_id, created_at)
			 VALUES ($1, $2, 0, $3, $4, $5)`,
			matchID, models.MatchStatusCreated, pq.Array([]string{}), userID, now,
		)
		if err != nil {
			return fmt.Errorf("マッチの作成に失敗しました: %w", err)
		}

		settings.MatchID = matchID
		_, err = txStore.q.Exec(
			`INSERT INTO game_settings (match_id, max_turns, map_size, ruleset_id) VALUES ($1, $2, $3, $4)`,
			matchID, settings.MaxTurns, settings.MapSize, settings.RulesetID,
		)
		if err != nil {
			return fmt.Errorf("ゲーム設定の作成に失敗しました: %w", err)
		}

		mapID := uuid.New().String()
		_, err = txStore.q.Exec(`INSERT INTO maps (id, match_id, size) VALUES ($1, $2, $3)`, mapID, matchID, settings.MapSize)
		if err != nil {
			return fmt.Errorf("盤面の作成に失敗しました: %w", err)
		}

		creator, err := txStore.AddParticipant(matchID, userID)
		if err != nil {
			return err
		}

		if err := txStore.createTiles(mapID, settings.MapSize); err != nil {
			return err
		}

		// 中央にMAIN_BUILDINGを配置（隣接判定では全プレイヤーの味方扱い）
		center := schnoz.Coordinate{Row: settings.MapSize / 2, Col: settings.MapSize / 2}
		if _, err := txStore.CreateUnit(mapID, center, creator.ID, models.UnitTypeMainBuilding); err != nil {
			return err
		}

		// 初期視界: 中央とその8近傍
		if _, err := txStore.RevealTile(mapID, center); err != nil {
			return err
		}
		for _, adjacent := range schnoz.AdjacentCoordinates(center) {
			if _, err := txStore.RevealTile(mapID, adjacent); err != nil {
				return err
			}
		}

		rich, err = txStore.MatchRichByID(matchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rich, nil
}

// createTiles は盤面の全タイルを生成します。中央以外の一部のタイルには
// ランダムに地形マーカーを配置します。
func (s *postgresStore) createTiles(mapID string, size int) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	terrains := []models.Terrain{models.TerrainWater, models.TerrainStone, models.TerrainTree}
	center := size / 2

	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			var terrain *models.Terrain
			isNearCenter := row >= center-1 && row <= center+1 && col >= center-1 && col <= center+1
			if !isNearCenter && rng.Float64() < terrainRatio {
				picked := terrains[rng.Intn(len(terrains))]
				terrain = &picked
			}
			_, err := s.q.Exec(
				`INSERT INTO tiles (map_id, "row", "col", visible, terrain) VALUES ($1, $2, $3, FALSE, $4)`,
				mapID, row, col, terrain,
			)
			if err != nil {
				return fmt.Errorf("タイル (%d,%d) の作成に失敗しました: %w", row, col, err)
			}
		}
	}
	return nil
}

// AddParticipant はマッチに参加者を追加します。席番号は現在の参加者数です。
func (s *postgresStore) AddParticipant(matchID string, userID string) (*models.Participant, error) {
	existing, err := s.ParticipantsByMatchID(matchID)
	if err != nil {
		return nil, err
	}
	for _, participant := range existing {
		if participant.UserID == userID {
			return nil, fmt.Errorf("ユーザー %s は既にマッチ %s に参加しています", userID, matchID)
		}
	}

	participant := &models.Participant{
		ID:           uuid.New().String(),
		MatchID:      matchID,
		UserID:       userID,
		PlayerNumber: len(existing),
	}
	_, err = s.q.Exec(
		`INSERT INTO participants (id, match_id, user_id, player_number, score, bonus_points) VALUES ($1, $2, $3, $4, 0, 0)`,
		participant.ID, participant.MatchID, participant.UserID, participant.PlayerNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者の追加に失敗しました: %w", err)
	}
	return participant, nil
}

// tileWithUnit は1タイルをユニット込みで取得します。
func (s *postgresStore) tileWithUnit(mapID string, coordinate schnoz.Coordinate) (*models.TileWithUnit, error) {
	row := s.q.QueryRow(
		`SELECT t.map_id, t."row", t."col", t.visible, t.terrain, u.id, u.owner_id, u.type
		 FROM tiles t
		 LEFT JOIN units u ON u.map_id = t.map_id AND u."row" = t."row" AND u."col" = t."col"
		 WHERE t.map_id = $1 AND t."row" = $2 AND t."col" = $3`,
		mapID, coordinate.Row, coordinate.Col,
	)
	tile, err := scanTileWithUnit(row)
	if err != nil {
		return nil, err
	}
	return tile, nil
}

// rowScanner は *sql.Row と *sql.Rows の共通スキャンインターフェースです。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTileWithUnit はタイル＋ユニットのLEFT JOIN結果をスキャンします。
func scanTileWithUnit(scanner rowScanner) (*models.TileWithUnit, error) {
	tile := &models.TileWithUnit{}
	var terrain sql.NullString
	var unitID, unitOwnerID, unitType sql.NullString
	err := scanner.Scan(
		&tile.MapID,
		&tile.Row,
		&tile.Col,
		&tile.Visible,
		&terrain,
		&unitID,
		&unitOwnerID,
		&unitType,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("タイルが見つかりません")
	}
	if err != nil {
		return nil, fmt.Errorf("タイルのスキャンに失敗しました: %w", err)
	}
	if terrain.Valid {
		value := models.Terrain(terrain.String)
		tile.Terrain = &value
	}
	if unitID.Valid {
		tile.Unit = &models.Unit{
			ID:      unitID.String,
			OwnerID: unitOwnerID.String,
			Type:    models.UnitType(unitType.String),
		}
	}
	return tile, nil
}

func toStrings(ids []schnoz.ConstellationID) []string {
	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = string(id)
	}
	return values
}

func toConstellationIDs(values []string) []schnoz.ConstellationID {
	ids := make([]schnoz.ConstellationID, len(values))
	for i, value := range values {
		ids[i] = schnoz.ConstellationID(value)
	}
	return ids
}
