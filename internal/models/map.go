package models

import (
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// Terrain はタイル上の不変の地形マーカーです。
type Terrain string

const (
	TerrainWater Terrain = "WATER"
	TerrainStone Terrain = "STONE"
	TerrainTree  Terrain = "TREE"
)

// UnitType はタイル上のユニットの種類です。
// MAIN_BUILDING はセットアップ時に一度だけ配置され、隣接判定では
// 所有者に関わらず常に「味方」として扱われます。
type UnitType string

const (
	UnitTypeUnit         UnitType = "UNIT"
	UnitTypeMainBuilding UnitType = "MAIN_BUILDING"
)

// Unit はタイル上に置かれたユニットです。
type Unit struct {
	ID      string   `json:"id"`
	OwnerID string   `json:"ownerId"` // 所有者（Participant.ID）
	Type    UnitType `json:"type"`
}

// Map はマッチの盤面です（Matchと1対1）。Size は奇数の正方形一辺です。
type Map struct {
	ID      string `json:"id"`
	MatchID string `json:"matchId"`
	Size    int    `json:"size"`
}

// Tile は盤面上の1マスです。(Row, Col) はマップ内で一意です。
type Tile struct {
	MapID   string   `json:"mapId"`
	Row     int      `json:"row"`
	Col     int      `json:"col"`
	Visible bool     `json:"visible"` // 索敵済みフラグ（fog-of-war）
	Terrain *Terrain `json:"terrain"`
}

// TileWithUnit はユニット情報を含むタイルです。
type TileWithUnit struct {
	Tile
	Unit *Unit `json:"unit"`
}

// Coordinate はタイルの座標を返します。
func (t *Tile) Coordinate() schnoz.Coordinate {
	return schnoz.Coordinate{Row: t.Row, Col: t.Col}
}

// TileLookup は "row_col" キーによるタイルの索引です。
type TileLookup map[string]*TileWithUnit

// BuildTileLookup はタイルリストから索引を構築します。
func BuildTileLookup(tiles []*TileWithUnit) TileLookup {
	lookup := make(TileLookup, len(tiles))
	for _, tile := range tiles {
		lookup[schnoz.BuildTileLookupID(tile.Coordinate())] = tile
	}
	return lookup
}

// NewlyRevealedTiles は新規配置されたユニットの視界によって新たに可視になる
// タイルを計算します。配置座標自身とその8近傍のうち、まだ不可視のタイルが
// 対象です。配置座標にタイルが存在しない場合はエラー（盤面データ不整合）です。
//
// Parameters:
//   lookup : 現在の盤面の索引
//   placed : 配置先の絶対座標
// Returns:
//   []*TileWithUnit: 新たに可視となるタイル
//   *GameError     : 参照先タイルが欠落している場合
func NewlyRevealedTiles(lookup TileLookup, placed []schnoz.Coordinate) ([]*TileWithUnit, *GameError) {
	seen := make(map[string]bool, len(placed)*9)
	revealed := make([]*TileWithUnit, 0, len(placed)*3)

	for _, coordinate := range placed {
		id := schnoz.BuildTileLookupID(coordinate)
		tile, ok := lookup[id]
		if !ok {
			return nil, &GameError{
				Message:    "Could not resolve tile for revealed area",
				StatusCode: 500,
			}
		}
		candidates := append([]*TileWithUnit{tile}, adjacentTiles(lookup, coordinate)...)
		for _, candidate := range candidates {
			id := schnoz.BuildTileLookupID(candidate.Coordinate())
			if candidate.Visible || seen[id] {
				continue
			}
			seen[id] = true
			revealed = append(revealed, candidate)
		}
	}
	return revealed, nil
}

// adjacentTiles は座標の8近傍のうち盤面上に存在するタイルを返します。
func adjacentTiles(lookup TileLookup, coordinate schnoz.Coordinate) []*TileWithUnit {
	tiles := make([]*TileWithUnit, 0, 8)
	for _, adjacent := range schnoz.AdjacentCoordinates(coordinate) {
		if tile, ok := lookup[schnoz.BuildTileLookupID(adjacent)]; ok {
			tiles = append(tiles, tile)
		}
	}
	return tiles
}
