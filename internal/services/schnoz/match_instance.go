package schnoz

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// MatchInstance は1つのマッチのゲーム進行を管理する権威サーバーの中核です。
// 全ての状態遷移（開始、設定変更、1手の実行）は内部ミューテックスで
// 直列化され、検証の直前に必ずストアから最新状態を再同期します。
type MatchInstance struct {
	matchID      string
	store        database.Store
	variant      GameVariant
	turnDuration time.Duration

	mu        sync.Mutex
	rich      *models.MatchRich
	turnTimer *time.Timer

	notifyTimeRemaining func(TimeRemaining)
}

// TimeRemaining はターン制限時間の通知ペイロードです。
// ターン開始時に Expired=false で、期限到来時に Expired=true で発行されます。
// 期限は通知のみで、ターンの自動進行は行いません。
type TimeRemaining struct {
	Turn     int       `json:"turn"`
	Deadline time.Time `json:"deadline"`
	Expired  bool      `json:"expired"`
}

// MoveResult は1手の実行によって変化した状態の差分です。
// クライアントへのイベント配信にそのまま使用されます。
type MoveResult struct {
	UpdatedMatch   *models.Match          `json:"updatedMatch"`
	UpdatedTiles   []*models.TileWithUnit `json:"updatedTilesWithUnits"`
	UpdatedPlayers []*models.Participant  `json:"updatedPlayers"`
}

// NewMatchInstance はストアからマッチを読み込み、インスタンスを初期化します。
//
// Parameters:
//   matchID      : 対象マッチのID
//   store        : 永続化ストア
//   turnDuration : 1ターンの制限時間
// Returns:
//   *MatchInstance: 初期化されたインスタンス
//   error         : マッチが存在しない、または読み込みに失敗した場合
func NewMatchInstance(matchID string, store database.Store, turnDuration time.Duration) (*MatchInstance, error) {
	instance := &MatchInstance{
		matchID:      matchID,
		store:        store,
		turnDuration: turnDuration,
	}
	if err := instance.sync(); err != nil {
		return nil, err
	}
	instance.variant = GameVariantByRulesetID(instance.rich.GameSettings.RulesetID)
	return instance, nil
}

// MatchID は管理対象のマッチIDを返します。
func (m *MatchInstance) MatchID() string {
	return m.matchID
}

// sync はストアから最新のスナップショットを読み込みます。
// 呼び出し側がロックを保持している必要があります（初期化時を除く）。
func (m *MatchInstance) sync() error {
	rich, err := m.store.MatchRichByID(m.matchID)
	if err != nil {
		return fmt.Errorf("マッチ %s の同期に失敗しました: %w", m.matchID, err)
	}
	m.rich = rich
	return nil
}

// Snapshot は現在のマッチ状態のスナップショットを返します。
func (m *MatchInstance) Snapshot() (*models.MatchRich, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sync(); err != nil {
		return nil, err
	}
	return m.rich, nil
}

// Connect はユーザーの接続を検証し、初期スナップショットを返します。
// マッチの参加者でないユーザーは接続できません。
func (m *MatchInstance) Connect(userID string) (*models.MatchRich, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sync(); err != nil {
		return nil, err
	}
	if m.participantByUserID(userID) == nil {
		return nil, models.NewGameError("You are not a participant of this match", 403)
	}
	return m.rich, nil
}

// StartMatch はマッチを開始します。作成者のみが開始でき、
// 参加者が2人以上、盤面が存在し、マップサイズが奇数である必要があります。
func (m *MatchInstance) StartMatch(userID string) (*models.MatchRich, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sync(); err != nil {
		return nil, err
	}

	match := m.rich.Match
	if match.Status != models.MatchStatusCreated {
		return nil, models.NewGameError("Match has already been started", 400)
	}
	if match.CreatedByID != userID {
		return nil, models.NewGameError("Only the match creator can start the match", 403)
	}
	if m.rich.Map == nil {
		return nil, models.NewGameError("Match has no map", 500)
	}
	if len(m.rich.Players) < 2 {
		return nil, models.NewGameError("Match requires at least two participants", 400)
	}
	if m.rich.GameSettings.MapSize%2 == 0 {
		return nil, models.NewGameError("Map size must be an odd number", 400)
	}

	// 先手は開始操作を行ったユーザー自身の参加者行
	starter := m.participantByUserID(userID)
	if starter == nil {
		return nil, models.NewGameError("You are not a participant of this match", 403)
	}

	now := time.Now()
	match.Status = models.MatchStatusStarted
	match.Turn = 1
	match.ActivePlayerID = &starter.ID
	match.OpenCards = m.variant.DrawOpenCards()
	match.StartedAt = &now

	if _, err := m.store.UpdateMatch(match); err != nil {
		return nil, err
	}
	if err := m.sync(); err != nil {
		return nil, err
	}

	m.scheduleTurnTimer(m.rich.Match.Turn)
	log.Printf("[MatchInstance %s] マッチを開始しました。先手: %s", m.matchID, starter.ID)
	return m.rich, nil
}

// SetGameSettings はゲーム設定を部分更新します。開始前のマッチに対して
// 作成者のみが実行できます。
func (m *MatchInstance) SetGameSettings(userID string, update models.GameSettingsUpdate) (*models.GameSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sync(); err != nil {
		return nil, err
	}

	if m.rich.Match.Status != models.MatchStatusCreated {
		return nil, models.NewGameError("Game settings can only be changed before the match starts", 400)
	}
	if m.rich.Match.CreatedByID != userID {
		return nil, models.NewGameError("Only the match creator can change game settings", 403)
	}
	if update.MapSize != nil && *update.MapSize%2 == 0 {
		return nil, models.NewGameError("Map size must be an odd number", 400)
	}

	settings, err := m.store.UpdateGameSettings(m.matchID, update)
	if err != nil {
		return nil, err
	}
	m.rich.GameSettings = settings
	if update.RulesetID != nil {
		m.variant = GameVariantByRulesetID(settings.RulesetID)
	}
	return settings, nil
}

// MakeMove は1手を実行します。検証から永続化、スコア再計算、
// ターン進行までを1つのクリティカルセクションで行います。
// 検証エラー（GameError）の場合、状態は一切変更されません。
//
// Parameters:
//   userID          : 手を打つユーザーのID
//   constellationID : 配置するコンステレーション（openCardsに含まれること）
//   target          : 原点 (0,0) を合わせる配置先の絶対座標
//   transform       : 反転・回転の指定
//   ignoredRules    : このルールセットで無視するルール名
//   specials        : ボーナスポイントで購入するスペシャル効果
func (m *MatchInstance) MakeMove(
	userID string,
	constellationID schnoz.ConstellationID,
	target schnoz.Coordinate,
	transform schnoz.Transform,
	ignoredRules []string,
	specials []schnoz.Special,
) (*MoveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sync(); err != nil {
		return nil, err
	}

	match := m.rich.Match
	if match.Status != models.MatchStatusStarted {
		return nil, models.NewGameError("Match has not been started yet", 400)
	}

	player := m.participantByUserID(userID)
	if player == nil {
		return nil, models.NewGameError("You are not a participant of this match", 403)
	}
	if match.ActivePlayerID == nil || *match.ActivePlayerID != player.ID {
		return nil, models.NewGameError("It is not your turn", 400)
	}

	if !containsConstellation(match.OpenCards, constellationID) {
		return nil, models.NewGameError("Constellation is not among the open cards", 400)
	}
	constellation, ok := schnoz.ConstellationByID(constellationID)
	if !ok {
		return nil, models.NewGameError("Unknown constellation", 400)
	}

	// スペシャルのコストは定義から解決し、配置で得る価値も支払いに充当できます
	totalCost := schnoz.TotalCost(specials)
	if player.BonusPoints+constellation.Value < totalCost {
		return nil, models.NewGameError("Not enough bonus points", 400)
	}

	placed := schnoz.TranslateCoordinatesTo(target, schnoz.TransformCoordinates(constellation.Coordinates, transform))
	lookup := models.BuildTileLookup(m.rich.TilesWithUnits)
	if _, ok := lookup[schnoz.BuildTileLookupID(target)]; !ok {
		return nil, models.NewGameError("Target tile does not exist", 400)
	}

	ignored := make(map[string]bool, len(ignoredRules))
	for _, name := range ignoredRules {
		ignored[name] = true
	}
	rules := EffectiveRules(m.variant.PlacementRules(), specials)
	if gameErr := ValidatePlacement(rules, placed, lookup, player.ID, ignored); gameErr != nil {
		return nil, gameErr
	}

	revealed, gameErr := models.NewlyRevealedTiles(lookup, placed)
	if gameErr != nil {
		return nil, gameErr
	}

	err := m.store.Transact(func(tx database.Store) error {
		return m.persistMove(tx, player, constellation, placed, revealed, totalCost)
	})
	if err != nil {
		return nil, err
	}

	if err := m.sync(); err != nil {
		return nil, err
	}

	if m.rich.Match.Status == models.MatchStatusFinished {
		m.stopTurnTimer()
		log.Printf("[MatchInstance %s] マッチが終了しました。勝者: %v", m.matchID, stringOrNone(m.rich.Match.WinnerID))
	} else {
		m.scheduleTurnTimer(m.rich.Match.Turn)
	}

	return m.buildMoveResult(placed, revealed), nil
}

// persistMove は1手の全書き込みをトランザクション内で実行します。
// ユニット作成、視界更新、スコア再計算、ターン進行（または終局）の順です。
func (m *MatchInstance) persistMove(
	tx database.Store,
	player *models.Participant,
	constellation schnoz.Constellation,
	placed []schnoz.Coordinate,
	revealed []*models.TileWithUnit,
	totalCost int,
) error {
	mapID := m.rich.Map.ID
	for _, coordinate := range placed {
		if _, err := tx.CreateUnit(mapID, coordinate, player.ID, models.UnitTypeUnit); err != nil {
			return err
		}
	}
	for _, tile := range revealed {
		if _, err := tx.RevealTile(mapID, tile.Coordinate()); err != nil {
			return err
		}
	}

	updated, err := tx.MatchRichByID(m.matchID)
	if err != nil {
		return err
	}

	scores := m.variant.Evaluate(updated)
	for _, participant := range updated.Players {
		score := scores[participant.ID]
		bonusPoints := participant.BonusPoints
		if participant.ID == player.ID {
			bonusPoints = bonusPoints + constellation.Value - totalCost
		}
		saved, err := tx.UpdateParticipantScore(participant.ID, score, bonusPoints)
		if err != nil {
			return err
		}
		participant.Score = saved.Score
		participant.BonusPoints = saved.BonusPoints
	}

	match := updated.Match
	if IsLastTurn(match.Turn, updated.GameSettings.MaxTurns) {
		now := time.Now()
		winner := DetermineWinner(updated.Players)
		match.Status = models.MatchStatusFinished
		match.ActivePlayerID = nil
		match.WinnerID = &winner.ID
		match.FinishedAt = &now
	} else {
		if m.variant.ShouldChangeCards(match.Turn) {
			match.OpenCards = m.variant.DrawOpenCards()
		}
		if m.variant.ShouldChangeActivePlayer(match.Turn) {
			next := nextPlayer(updated.Players, player.ID)
			match.ActivePlayerID = &next.ID
		}
	}
	// ターンカウンタは終局する手でも必ず1進む
	match.Turn++

	_, err = tx.UpdateMatch(match)
	return err
}

// buildMoveResult は配置・視界更新されたタイルを同期済みスナップショット
// から集めて差分を構築します。
func (m *MatchInstance) buildMoveResult(placed []schnoz.Coordinate, revealed []*models.TileWithUnit) *MoveResult {
	lookup := models.BuildTileLookup(m.rich.TilesWithUnits)
	seen := make(map[string]bool, len(placed)+len(revealed))
	tiles := make([]*models.TileWithUnit, 0, len(placed)+len(revealed))

	appendTile := func(coordinate schnoz.Coordinate) {
		id := schnoz.BuildTileLookupID(coordinate)
		if seen[id] {
			return
		}
		if tile, ok := lookup[id]; ok {
			seen[id] = true
			tiles = append(tiles, tile)
		}
	}
	for _, coordinate := range placed {
		appendTile(coordinate)
	}
	for _, tile := range revealed {
		appendTile(tile.Coordinate())
	}

	return &MoveResult{
		UpdatedMatch:   m.rich.Match,
		UpdatedTiles:   tiles,
		UpdatedPlayers: m.rich.Players,
	}
}

// SetTimeRemainingNotifier はターン制限時間の通知先を設定します。
// タイマーが動き出す前（インスタンス登録直後）に1度だけ呼び出します。
func (m *MatchInstance) SetTimeRemainingNotifier(notify func(TimeRemaining)) {
	m.notifyTimeRemaining = notify
}

// scheduleTurnTimer はターンの制限時間タイマーを張り替えます。
// 必ず先に既存タイマーを止めるため、期限通知が重複することはありません。
func (m *MatchInstance) scheduleTurnTimer(turn int) {
	m.stopTurnTimer()
	if m.turnDuration <= 0 {
		return
	}
	deadline := time.Now().Add(m.turnDuration)
	if m.notifyTimeRemaining != nil {
		m.notifyTimeRemaining(TimeRemaining{Turn: turn, Deadline: deadline})
	}
	m.turnTimer = time.AfterFunc(m.turnDuration, func() {
		log.Printf("[MatchInstance %s] ターン %d の制限時間が経過しました", m.matchID, turn)
		if m.notifyTimeRemaining != nil {
			m.notifyTimeRemaining(TimeRemaining{Turn: turn, Deadline: deadline, Expired: true})
		}
	})
}

// stopTurnTimer は現在のタイマーを停止します。
func (m *MatchInstance) stopTurnTimer() {
	if m.turnTimer != nil {
		m.turnTimer.Stop()
		m.turnTimer = nil
	}
}

// Close はインスタンスを破棄します。以降のタイマー発火を防ぎます。
func (m *MatchInstance) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTurnTimer()
}

// IsFinished はマッチが終局状態かどうかを返します。
// レジストリからのインスタンス破棄の判定に使用されます。
func (m *MatchInstance) IsFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rich.Match.Status == models.MatchStatusFinished
}

// participantByUserID はユーザーIDに対応する参加者を返します。
func (m *MatchInstance) participantByUserID(userID string) *models.Participant {
	for _, player := range m.rich.Players {
		if player.UserID == userID {
			return player
		}
	}
	return nil
}

// nextPlayer は席番号順で現在のプレイヤーの次の参加者を返します（循環）。
func nextPlayer(players []*models.Participant, currentID string) *models.Participant {
	for i, player := range players {
		if player.ID == currentID {
			return players[(i+1)%len(players)]
		}
	}
	return players[0]
}

func containsConstellation(cards []schnoz.ConstellationID, id schnoz.ConstellationID) bool {
	for _, card := range cards {
		if card == id {
			return true
		}
	}
	return false
}

func stringOrNone(value *string) string {
	if value == nil {
		return "(なし)"
	}
	return *value
}
