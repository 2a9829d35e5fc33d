package database

import (
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// Store はマッチエンジンが依存する永続化コントラクトです。
// 読み取りは常に最新スナップショットを返し、書き込みはタイル単位・
// 参加者単位・マッチ単位でアトミックです。複数書き込みをまたぐ
// 一貫性が必要な場合は Transact で囲みます。
type Store interface {
	// --- 読み取り ---
	MatchByID(matchID string) (*models.Match, error)
	GameSettingsByMatchID(matchID string) (*models.GameSettings, error)
	MapByMatchID(matchID string) (*models.Map, error)
	ParticipantsByMatchID(matchID string) ([]*models.Participant, error)
	TilesWithUnitsByMapID(mapID string) ([]*models.TileWithUnit, error)
	MatchRichByID(matchID string) (*models.MatchRich, error)

	// --- 書き込み ---
	UpdateMatch(match *models.Match) (*models.Match, error)
	UpdateGameSettings(matchID string, update models.GameSettingsUpdate) (*models.GameSettings, error)
	UpdateParticipantScore(participantID string, score int, bonusPoints int) (*models.Participant, error)
	CreateUnit(mapID string, coordinate schnoz.Coordinate, ownerID string, unitType models.UnitType) (*models.TileWithUnit, error)
	RevealTile(mapID string, coordinate schnoz.Coordinate) (*models.TileWithUnit, error)

	// --- セットアップCRUD ---
	CreateMatch(userID string, settings *models.GameSettings) (*models.MatchRich, error)
	AddParticipant(matchID string, userID string) (*models.Participant, error)

	// Transact は fn 内の全書き込みを1つのトランザクション境界で実行します。
	// fn がエラーを返した場合は全てロールバックされます。
	Transact(fn func(Store) error) error
}
