package models

import (
	"time"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// MatchStatus はマッチのライフサイクル状態を表します。
// CREATED → STARTED → FINISHED の順にのみ遷移します。
type MatchStatus string

const (
	MatchStatusCreated  MatchStatus = "CREATED"
	MatchStatusStarted  MatchStatus = "STARTED"
	MatchStatusFinished MatchStatus = "FINISHED"
)

// Match は1つの対戦を表す永続レコードです。
// 不変条件: ActivePlayerID は STARTED のときのみ設定され、
// WinnerID は FINISHED のときのみ設定されます。
type Match struct {
	ID             string                   `json:"id"`
	Status         MatchStatus              `json:"status"`
	Turn           int                      `json:"turn"`            // 1始まりの単調増加カウンタ
	ActivePlayerID *string                  `json:"activePlayerId"`  // 手番プレイヤー（Participant.ID）
	WinnerID       *string                  `json:"winnerId"`        // 勝者（Participant.ID）
	OpenCards      []schnoz.ConstellationID `json:"openCards"`       // 現在プレイ可能なコンステレーション
	CreatedByID    string                   `json:"createdById"`     // マッチ作成者のユーザーID
	CreatedAt      time.Time                `json:"createdAt"`
	StartedAt      *time.Time               `json:"startedAt"`
	FinishedAt     *time.Time               `json:"finishedAt"`
}

// GameSettings はマッチごとのゲーム設定です（Matchと1対1）。
type GameSettings struct {
	MatchID   string `json:"matchId"`
	MaxTurns  int    `json:"maxTurns"`
	MapSize   int    `json:"mapSize"` // 正方形マップの一辺（奇数のみ有効）
	RulesetID string `json:"rulesetId"`
}

// GameSettingsUpdate は update-game-settings で受け付ける部分更新です。
// nil のフィールドは変更されません。
type GameSettingsUpdate struct {
	MaxTurns  *int    `json:"maxTurns,omitempty"`
	MapSize   *int    `json:"mapSize,omitempty"`
	RulesetID *string `json:"rulesetId,omitempty"`
}

// MatchRich はマッチの評価・配信に必要な集約スナップショットです。
type MatchRich struct {
	Match          *Match          `json:"match"`
	GameSettings   *GameSettings   `json:"gameSettings"`
	Map            *Map            `json:"map"`
	TilesWithUnits []*TileWithUnit `json:"tilesWithUnits"`
	Players        []*Participant  `json:"players"`
}

// ActivePlayer は ActivePlayerID に対応する参加者を返します。
func (m *MatchRich) ActivePlayer() *Participant {
	if m.Match == nil || m.Match.ActivePlayerID == nil {
		return nil
	}
	for _, player := range m.Players {
		if player.ID == *m.Match.ActivePlayerID {
			return player
		}
	}
	return nil
}
