package schnoz

import (
	"math/rand"
	"time"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// openCardCount は1度の抽選で公開されるコンステレーションの枚数です。
const openCardCount = 3

// GameVariant はルールセットごとの差し替え可能なポリシー集合です。
// 配置ルール、手番・カードのローテーション、スコア評価を提供します。
type GameVariant interface {
	// PlacementRules は配置検証に使用するルールリストを返します。
	// 返されたスライスは変更してはいけません。
	PlacementRules() []PlacementRule
	// ShouldChangeActivePlayer はこのターン終了時に手番を交代するかを返します。
	ShouldChangeActivePlayer(turn int) bool
	// ShouldChangeCards はこのターン終了時に openCards を引き直すかを返します。
	ShouldChangeCards(turn int) bool
	// DrawOpenCards は重複のない openCards を抽選します。
	DrawOpenCards() []schnoz.ConstellationID
	// Evaluate は現在の盤面から各参加者（Participant.ID）のスコアを算出します。
	// 評価は常に盤面全体からの再計算であり、単調増加です。
	Evaluate(rich *models.MatchRich) map[string]int
}

// RulesetStandard は標準ルールセットのIDです。
const RulesetStandard = "standard"

// GameVariantByRulesetID はルールセットIDに対応するバリアントを返します。
// 未知のIDには標準ルールを返します。
func GameVariantByRulesetID(rulesetID string) GameVariant {
	switch rulesetID {
	case RulesetStandard:
		return newStandardVariant()
	default:
		// 未知のルールセットIDは標準ルールにフォールバック
		return newStandardVariant()
	}
}

func newStandardVariant() *standardVariant {
	return &standardVariant{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// standardVariant は標準ルールです。手番は毎ターン交代、カードは
// 2ターンごとに引き直し、スコアは水辺隣接と斜め連鎖の2種で評価します。
type standardVariant struct {
	rng *rand.Rand
}

// standardRules の順序は検証順です。軽いタイル単位の判定を先に、
// 近傍走査を伴う隣接判定を最後に評価します。
var standardRules = []PlacementRule{
	RuleNoTerrain,
	RuleNoUnit,
	RuleAdjacentToAlly,
}

func (v *standardVariant) PlacementRules() []PlacementRule {
	return standardRules
}

// ShouldChangeActivePlayer は標準ルールでは常に true です。
func (v *standardVariant) ShouldChangeActivePlayer(turn int) bool {
	return true
}

// ShouldChangeCards は2ターンごと（偶数ターンの終了時）に true を返します。
func (v *standardVariant) ShouldChangeCards(turn int) bool {
	return turn%2 == 0
}

// DrawOpenCards はカタログから重複なしで openCardCount 枚を抽選します。
func (v *standardVariant) DrawOpenCards() []schnoz.ConstellationID {
	ids := schnoz.AllConstellationIDs()
	v.rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return ids[:openCardCount]
}

// Evaluate は盤面全体を走査して各参加者のスコアを再計算します。
func (v *standardVariant) Evaluate(rich *models.MatchRich) map[string]int {
	scores := make(map[string]int, len(rich.Players))
	for _, player := range rich.Players {
		scores[player.ID] = 0
	}

	lookup := models.BuildTileLookup(rich.TilesWithUnits)
	for _, tile := range rich.TilesWithUnits {
		if tile.Unit == nil || tile.Unit.Type != models.UnitTypeUnit {
			continue
		}
		ownerID := tile.Unit.OwnerID
		if _, ok := scores[ownerID]; !ok {
			continue
		}
		coordinate := tile.Coordinate()
		scores[ownerID] += waterAdjacencyPoints(lookup, coordinate)
		scores[ownerID] += diagonalChainPoints(lookup, coordinate, ownerID)
	}
	return scores
}

// waterAdjacencyPoints は8近傍にWATER地形が1つでもあれば1点を返します。
// タイルごとに最大1点なので、ユニットが増えない限りスコアは増えません。
func waterAdjacencyPoints(lookup models.TileLookup, coordinate schnoz.Coordinate) int {
	for _, adjacent := range schnoz.AdjacentCoordinates(coordinate) {
		tile, ok := lookup[schnoz.BuildTileLookupID(adjacent)]
		if ok && tile.Terrain != nil && *tile.Terrain == models.TerrainWater {
			return 1
		}
	}
	return 0
}

// diagonalChainPoints は右下斜めに自分のユニットが続いていれば1点を返します。
// 連鎖の各リンクを始点側のユニットに数えるため、長さnの斜め連鎖は
// 合計 n-1 点になります。
func diagonalChainPoints(lookup models.TileLookup, coordinate schnoz.Coordinate, ownerID string) int {
	next := schnoz.Coordinate{Row: coordinate.Row + 1, Col: coordinate.Col + 1}
	tile, ok := lookup[schnoz.BuildTileLookupID(next)]
	if ok && tile.Unit != nil && tile.Unit.Type == models.UnitTypeUnit && tile.Unit.OwnerID == ownerID {
		return 1
	}
	return 0
}

// IsLastTurn は現在のターンが最終ターンかどうかを判定します。
func IsLastTurn(turn int, maxTurns int) bool {
	return turn >= maxTurns
}

// DetermineWinner は最高スコアの参加者を返します。同点の場合は
// 席番号（PlayerNumber）が最も小さい参加者が勝者です。
func DetermineWinner(players []*models.Participant) *models.Participant {
	var winner *models.Participant
	for _, player := range players {
		if winner == nil ||
			player.Score > winner.Score ||
			(player.Score == winner.Score && player.PlayerNumber < winner.PlayerNumber) {
			winner = player
		}
	}
	return winner
}
