package schnoz

import (
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// RuleFunc は配置ルールの判定関数です。constellation は絶対座標に変換済みの
// 配置先、tiles は現在の盤面索引、playerID は配置するプレイヤー（Participant.ID）です。
// 配置が許可される場合に true を返します。
type RuleFunc func(constellation []schnoz.Coordinate, tiles models.TileLookup, playerID string) bool

// PlacementRule は名前付きの配置ルールです。Name は違反時に
// クライアントへ返されるエラーメッセージに使用されます。
type PlacementRule struct {
	Name  string
	Check RuleFunc
}

const (
	RuleNameNoTerrain       = "NO_TERRAIN"
	RuleNameNoUnit          = "NO_UNIT"
	RuleNameAdjacentToAlly  = "ADJACENT_TO_ALLY"
	RuleNameAdjacentToAlly2 = "ADJACENT_TO_ALLY_2"
)

// RuleNoTerrain は全ての配置先タイルが盤面上に存在し、かつ地形マーカーを
// 持たないことを要求します。
var RuleNoTerrain = PlacementRule{
	Name: RuleNameNoTerrain,
	Check: func(constellation []schnoz.Coordinate, tiles models.TileLookup, playerID string) bool {
		for _, coordinate := range constellation {
			tile, ok := tiles[schnoz.BuildTileLookupID(coordinate)]
			if !ok || tile.Terrain != nil {
				return false
			}
		}
		return true
	},
}

// RuleNoUnit は全ての配置先タイルが空であることを要求します。
var RuleNoUnit = PlacementRule{
	Name: RuleNameNoUnit,
	Check: func(constellation []schnoz.Coordinate, tiles models.TileLookup, playerID string) bool {
		for _, coordinate := range constellation {
			tile, ok := tiles[schnoz.BuildTileLookupID(coordinate)]
			if !ok || tile.Unit != nil {
				return false
			}
		}
		return true
	},
}

// RuleAdjacentToAlly は配置先の近傍（半径1）に味方ユニットが存在することを
// 要求します。MAIN_BUILDING は所有者に関わらず常に味方として扱われます。
var RuleAdjacentToAlly = PlacementRule{
	Name:  RuleNameAdjacentToAlly,
	Check: adjacentToAllyWithRadius(1),
}

// RuleAdjacentToAlly2 は半径2の近傍で味方を探す緩和版です。
// EXPAND_BUILD_RADIUS_BY_1 スペシャル適用時に RuleAdjacentToAlly と
// 差し替えられます。
var RuleAdjacentToAlly2 = PlacementRule{
	Name:  RuleNameAdjacentToAlly2,
	Check: adjacentToAllyWithRadius(2),
}

// adjacentToAllyWithRadius は指定半径の隣接ルールを生成します。
func adjacentToAllyWithRadius(radius int) RuleFunc {
	return func(constellation []schnoz.Coordinate, tiles models.TileLookup, playerID string) bool {
		for _, coordinate := range schnoz.ExpandNeighborhood(constellation, radius) {
			tile, ok := tiles[schnoz.BuildTileLookupID(coordinate)]
			if !ok || tile.Unit == nil {
				continue
			}
			if tile.Unit.Type == models.UnitTypeMainBuilding || tile.Unit.OwnerID == playerID {
				return true
			}
		}
		return false
	}
}

// EffectiveRules はこの1手に適用されるルールリストを構築します。
// EXPAND_BUILD_RADIUS_BY_1 スペシャルが含まれる場合、ADJACENT_TO_ALLY を
// 半径2版に差し替えた新しいスライスを返します。共有されるベースの
// ルールリストは決して変更しません。
func EffectiveRules(base []PlacementRule, specials []schnoz.Special) []PlacementRule {
	expandRadius := false
	for _, special := range specials {
		if special.Type == schnoz.SpecialExpandBuildRadiusByOne {
			expandRadius = true
		}
	}
	if !expandRadius {
		return base
	}

	effective := make([]PlacementRule, len(base))
	copy(effective, base)
	for i, rule := range effective {
		if rule.Name == RuleNameAdjacentToAlly {
			effective[i] = RuleAdjacentToAlly2
		}
	}
	return effective
}

// ValidatePlacement は全ルールを順に評価し、最初に違反したルールの
// GameError を返します。全ルールを満たす場合は nil を返します。
func ValidatePlacement(rules []PlacementRule, constellation []schnoz.Coordinate, tiles models.TileLookup, playerID string, ignoredRules map[string]bool) *models.GameError {
	for _, rule := range rules {
		if ignoredRules[rule.Name] {
			continue
		}
		if !rule.Check(constellation, tiles, playerID) {
			return models.NewGameError("Placement violates rule: "+rule.Name, 400)
		}
	}
	return nil
}
