package schnoz

import (
	"errors"
	"strings"
	"testing"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// asGameError はエラーが GameError であることを検証して返します。
func asGameError(t *testing.T, err error) *models.GameError {
	t.Helper()
	if err == nil {
		t.Fatal("Expected a GameError, but got nil.")
	}
	var gameErr *models.GameError
	if !errors.As(err, &gameErr) {
		t.Fatalf("Expected a GameError, but got: %v", err)
	}
	return gameErr
}

// TestStartMatch_Success はマッチの開始をテストします。
func TestStartMatch_Success(t *testing.T) {
	store := newTestStore(5, 12)
	instance, err := NewMatchInstance("match-1", store, 0)
	if err != nil {
		t.Fatalf("Failed to create match instance: %v", err)
	}

	rich, err := instance.StartMatch("user-1")
	if err != nil {
		t.Fatalf("Expected StartMatch to succeed, but got: %v", err)
	}

	if rich.Match.Status != models.MatchStatusStarted {
		t.Errorf("Expected status STARTED, but got %s", rich.Match.Status)
	}
	if rich.Match.Turn != 1 {
		t.Errorf("Expected turn 1, but got %d", rich.Match.Turn)
	}
	if rich.Match.ActivePlayerID == nil || *rich.Match.ActivePlayerID != "p1" {
		t.Errorf("Expected player p1 (seat 0) to start, but got %v", rich.Match.ActivePlayerID)
	}
	if rich.Match.StartedAt == nil {
		t.Error("Expected StartedAt to be set.")
	}

	// openCardsは3枚で重複なし
	if len(rich.Match.OpenCards) != 3 {
		t.Fatalf("Expected 3 open cards, but got %d", len(rich.Match.OpenCards))
	}
	seen := make(map[schnoz.ConstellationID]bool)
	for _, card := range rich.Match.OpenCards {
		if seen[card] {
			t.Errorf("Open cards contain duplicate: %s", card)
		}
		seen[card] = true
	}
}

// TestStartMatch_StarterIsTheCaller は先手が開始操作を行ったユーザー自身の
// 参加者行になることをテストします（席順の先頭ではない）。
func TestStartMatch_StarterIsTheCaller(t *testing.T) {
	store := newTestStore(5, 12)
	// 作成者 user-1 を2番目の席に移す
	store.participants = []*models.Participant{
		{ID: "p2", MatchID: "match-1", UserID: "user-2", PlayerNumber: 0},
		{ID: "p1", MatchID: "match-1", UserID: "user-1", PlayerNumber: 1},
	}
	instance, _ := NewMatchInstance("match-1", store, 0)

	rich, err := instance.StartMatch("user-1")
	if err != nil {
		t.Fatalf("Expected StartMatch to succeed, but got: %v", err)
	}
	if rich.Match.ActivePlayerID == nil || *rich.Match.ActivePlayerID != "p1" {
		t.Errorf("Expected the caller's participant p1 to start, but got %v", rich.Match.ActivePlayerID)
	}
}

// TestStartMatch_Validation は開始時の検証をテストします。
func TestStartMatch_Validation(t *testing.T) {
	// 作成者以外は開始できない
	store := newTestStore(5, 12)
	instance, _ := NewMatchInstance("match-1", store, 0)
	gameErr := asGameError(t, func() error { _, err := instance.StartMatch("user-2"); return err }())
	if gameErr.StatusCode != 403 {
		t.Errorf("Expected status 403 for non-creator, but got %d", gameErr.StatusCode)
	}

	// マップサイズが偶数のマッチは開始できない
	store = newTestStore(5, 12)
	store.settings.MapSize = 4
	instance, _ = NewMatchInstance("match-1", store, 0)
	gameErr = asGameError(t, func() error { _, err := instance.StartMatch("user-1"); return err }())
	if !strings.Contains(gameErr.Message, "odd") {
		t.Errorf("Expected odd map size error, but got: %s", gameErr.Message)
	}
	if store.match.Status != models.MatchStatusCreated {
		t.Errorf("Expected match to remain CREATED, but got %s", store.match.Status)
	}

	// 参加者が1人では開始できない
	store = newTestStore(5, 12)
	store.participants = store.participants[:1]
	instance, _ = NewMatchInstance("match-1", store, 0)
	asGameError(t, func() error { _, err := instance.StartMatch("user-1"); return err }())

	// 開始済みのマッチは再開始できない
	store = newTestStore(5, 12)
	store.setStarted(1, "p1", schnoz.ConstellationShortI)
	instance, _ = NewMatchInstance("match-1", store, 0)
	asGameError(t, func() error { _, err := instance.StartMatch("user-1"); return err }())
}

// TestMakeMove_Success は1手の実行をテストします。
// MAIN_BUILDINGの隣にSHORT_Iを配置し、ターン進行とボーナス付与を確認します。
func TestMakeMove_Success(t *testing.T) {
	store := newTestStore(5, 12)
	store.setStarted(1, "p1", schnoz.ConstellationShortI, schnoz.ConstellationCorner, schnoz.ConstellationGate)
	instance, _ := NewMatchInstance("match-1", store, 0)

	result, err := instance.MakeMove(
		"user-1",
		schnoz.ConstellationShortI,
		schnoz.Coordinate{Row: 1, Col: 2},
		schnoz.Transform{},
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("Expected MakeMove to succeed, but got: %v", err)
	}

	// ユニットが配置されている
	for _, coordinate := range []schnoz.Coordinate{{Row: 1, Col: 2}, {Row: 1, Col: 3}} {
		unit := store.unitAt(coordinate)
		if unit == nil {
			t.Fatalf("Expected a unit at (%d,%d), but found none", coordinate.Row, coordinate.Col)
		}
		if unit.OwnerID != "p1" || unit.Type != models.UnitTypeUnit {
			t.Errorf("Unexpected unit at (%d,%d): %+v", coordinate.Row, coordinate.Col, unit)
		}
	}

	// ターンが進み、手番が交代している
	if result.UpdatedMatch.Turn != 2 {
		t.Errorf("Expected turn 2, but got %d", result.UpdatedMatch.Turn)
	}
	if result.UpdatedMatch.ActivePlayerID == nil || *result.UpdatedMatch.ActivePlayerID != "p2" {
		t.Errorf("Expected active player p2, but got %v", result.UpdatedMatch.ActivePlayerID)
	}

	// ターン1の終了ではカードは引き直されない
	if len(result.UpdatedMatch.OpenCards) != 3 || result.UpdatedMatch.OpenCards[0] != schnoz.ConstellationShortI {
		t.Errorf("Expected open cards to stay unchanged after turn 1, but got %v", result.UpdatedMatch.OpenCards)
	}

	// 配置者にはコンステレーションの価値分のボーナスが付与される
	for _, player := range result.UpdatedPlayers {
		if player.ID == "p1" && player.BonusPoints != 1 {
			t.Errorf("Expected p1 bonus points to be 1, but got %d", player.BonusPoints)
		}
		if player.ID == "p2" && player.BonusPoints != 0 {
			t.Errorf("Expected p2 bonus points to be 0, but got %d", player.BonusPoints)
		}
	}

	// 差分には配置タイルと新規可視タイルが含まれる
	if len(result.UpdatedTiles) < 2 {
		t.Errorf("Expected at least the 2 placed tiles in the diff, but got %d", len(result.UpdatedTiles))
	}
}

// TestMakeMove_NotYourTurn は手番でないプレイヤーの手を拒否することをテストします。
func TestMakeMove_NotYourTurn(t *testing.T) {
	store := newTestStore(5, 12)
	store.setStarted(1, "p1", schnoz.ConstellationShortI)
	instance, _ := NewMatchInstance("match-1", store, 0)

	_, err := instance.MakeMove("user-2", schnoz.ConstellationShortI, schnoz.Coordinate{Row: 1, Col: 2}, schnoz.Transform{}, nil, nil)
	gameErr := asGameError(t, err)
	if gameErr.Message != "It is not your turn" {
		t.Errorf("Unexpected error message: %s", gameErr.Message)
	}

	// 状態は一切変更されていない
	if store.match.Turn != 1 {
		t.Errorf("Expected turn to remain 1, but got %d", store.match.Turn)
	}
	if store.unitAt(schnoz.Coordinate{Row: 1, Col: 2}) != nil {
		t.Error("Expected no unit to be placed on a rejected move.")
	}
}

// TestMakeMove_CardNotOpen は公開されていないコンステレーションを拒否することをテストします。
func TestMakeMove_CardNotOpen(t *testing.T) {
	store := newTestStore(5, 12)
	store.setStarted(1, "p1", schnoz.ConstellationCorner)
	instance, _ := NewMatchInstance("match-1", store, 0)

	_, err := instance.MakeMove("user-1", schnoz.ConstellationShortI, schnoz.Coordinate{Row: 1, Col: 2}, schnoz.Transform{}, nil, nil)
	asGameError(t, err)
	if store.unitAt(schnoz.Coordinate{Row: 1, Col: 2}) != nil {
		t.Error("Expected no unit to be placed on a rejected move.")
	}
}

// TestMakeMove_AdjacencyViolation は味方から離れた配置を拒否することをテストします。
func TestMakeMove_AdjacencyViolation(t *testing.T) {
	store := newTestStore(5, 12)
	store.setStarted(1, "p1", schnoz.ConstellationShortI)
	instance, _ := NewMatchInstance("match-1", store, 0)

	// (4,0)-(4,1) はMAIN_BUILDING (2,2) の半径1近傍の外
	_, err := instance.MakeMove("user-1", schnoz.ConstellationShortI, schnoz.Coordinate{Row: 4, Col: 0}, schnoz.Transform{}, nil, nil)
	gameErr := asGameError(t, err)
	if !strings.Contains(gameErr.Message, RuleNameAdjacentToAlly) {
		t.Errorf("Expected %s violation, but got: %s", RuleNameAdjacentToAlly, gameErr.Message)
	}

	if store.unitAt(schnoz.Coordinate{Row: 4, Col: 0}) != nil {
		t.Error("Expected no unit to be placed on a rejected move.")
	}
	if store.match.Turn != 1 {
		t.Errorf("Expected turn to remain 1, but got %d", store.match.Turn)
	}
}

// TestMakeMove_ExpandBuildRadiusSpecial はスペシャルによる建築半径の拡張をテストします。
func TestMakeMove_ExpandBuildRadiusSpecial(t *testing.T) {
	// スペシャルなしでは半径1の外で拒否される
	store := newTestStore(5, 12)
	store.setStarted(1, "p1", schnoz.ConstellationShortI)
	store.participants[0].BonusPoints = 5
	instance, _ := NewMatchInstance("match-1", store, 0)

	target := schnoz.Coordinate{Row: 4, Col: 3}
	_, err := instance.MakeMove("user-1", schnoz.ConstellationShortI, target, schnoz.Transform{}, nil, nil)
	asGameError(t, err)

	// スペシャルありでは半径2で味方に届き、コストが差し引かれる
	result, err := instance.MakeMove(
		"user-1",
		schnoz.ConstellationShortI,
		target,
		schnoz.Transform{},
		nil,
		[]schnoz.Special{schnoz.ExpandBuildRadiusByOne},
	)
	if err != nil {
		t.Fatalf("Expected move with special to succeed, but got: %v", err)
	}

	for _, player := range result.UpdatedPlayers {
		if player.ID == "p1" && player.BonusPoints != 1 {
			// 5 + 価値1 - コスト5
			t.Errorf("Expected p1 bonus points to be 1 after paying the special, but got %d", player.BonusPoints)
		}
	}
}

// TestMakeMove_NotEnoughBonusPoints はスペシャルの支払い不能を拒否することをテストします。
func TestMakeMove_NotEnoughBonusPoints(t *testing.T) {
	store := newTestStore(5, 12)
	store.setStarted(1, "p1", schnoz.ConstellationShortI)
	instance, _ := NewMatchInstance("match-1", store, 0)

	_, err := instance.MakeMove(
		"user-1",
		schnoz.ConstellationShortI,
		schnoz.Coordinate{Row: 1, Col: 2},
		schnoz.Transform{},
		nil,
		[]schnoz.Special{schnoz.ExpandBuildRadiusByOne},
	)
	gameErr := asGameError(t, err)
	if gameErr.Message != "Not enough bonus points" {
		t.Errorf("Unexpected error message: %s", gameErr.Message)
	}
}

// TestMakeMove_LastTurnFinishesMatch は最終ターンの手で終局することをテストします。
func TestMakeMove_LastTurnFinishesMatch(t *testing.T) {
	store := newTestStore(5, 1)
	store.setStarted(1, "p1", schnoz.ConstellationShortI)
	instance, _ := NewMatchInstance("match-1", store, 0)

	result, err := instance.MakeMove("user-1", schnoz.ConstellationShortI, schnoz.Coordinate{Row: 1, Col: 2}, schnoz.Transform{}, nil, nil)
	if err != nil {
		t.Fatalf("Expected MakeMove to succeed, but got: %v", err)
	}

	if result.UpdatedMatch.Status != models.MatchStatusFinished {
		t.Errorf("Expected status FINISHED, but got %s", result.UpdatedMatch.Status)
	}
	// ターンカウンタは終局する手でも進む
	if result.UpdatedMatch.Turn != 2 {
		t.Errorf("Expected turn 2 after the finishing move, but got %d", result.UpdatedMatch.Turn)
	}
	if result.UpdatedMatch.ActivePlayerID != nil {
		t.Error("Expected no active player after the match finished.")
	}
	if result.UpdatedMatch.FinishedAt == nil {
		t.Error("Expected FinishedAt to be set.")
	}
	// 同点のため席番号が小さいp1が勝者
	if result.UpdatedMatch.WinnerID == nil || *result.UpdatedMatch.WinnerID != "p1" {
		t.Errorf("Expected winner p1 on tie, but got %v", result.UpdatedMatch.WinnerID)
	}
	if !instance.IsFinished() {
		t.Error("Expected instance to report finished.")
	}
}

// TestSetGameSettings は開始前のみ設定変更できることをテストします。
func TestSetGameSettings(t *testing.T) {
	store := newTestStore(5, 12)
	instance, _ := NewMatchInstance("match-1", store, 0)

	maxTurns := 20
	settings, err := instance.SetGameSettings("user-1", models.GameSettingsUpdate{MaxTurns: &maxTurns})
	if err != nil {
		t.Fatalf("Expected SetGameSettings to succeed, but got: %v", err)
	}
	if settings.MaxTurns != 20 {
		t.Errorf("Expected max turns 20, but got %d", settings.MaxTurns)
	}

	// 偶数のマップサイズは拒否
	evenSize := 8
	asGameError(t, func() error {
		_, err := instance.SetGameSettings("user-1", models.GameSettingsUpdate{MapSize: &evenSize})
		return err
	}())

	// 作成者以外は変更できない
	asGameError(t, func() error {
		_, err := instance.SetGameSettings("user-2", models.GameSettingsUpdate{MaxTurns: &maxTurns})
		return err
	}())

	// 開始後は変更できない
	store.setStarted(1, "p1", schnoz.ConstellationShortI)
	asGameError(t, func() error {
		_, err := instance.SetGameSettings("user-1", models.GameSettingsUpdate{MaxTurns: &maxTurns})
		return err
	}())
}

// TestConnect は参加者のみが接続できることをテストします。
func TestConnect(t *testing.T) {
	store := newTestStore(5, 12)
	instance, _ := NewMatchInstance("match-1", store, 0)

	rich, err := instance.Connect("user-2")
	if err != nil {
		t.Fatalf("Expected participant to connect, but got: %v", err)
	}
	if rich == nil || len(rich.Players) != 2 {
		t.Error("Expected a full snapshot on connect.")
	}

	gameErr := asGameError(t, func() error { _, err := instance.Connect("user-9"); return err }())
	if gameErr.StatusCode != 403 {
		t.Errorf("Expected status 403 for non-participant, but got %d", gameErr.StatusCode)
	}
}
