package models

import (
	"testing"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

func testLookup(size int) TileLookup {
	tiles := make([]*TileWithUnit, 0, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			tiles = append(tiles, &TileWithUnit{
				Tile: Tile{MapID: "map-1", Row: row, Col: col},
			})
		}
	}
	return BuildTileLookup(tiles)
}

// TestNewlyRevealedTiles は配置による視界の拡張をテストします。
// 配置セルとその8近傍のうち、まだ不可視のタイルだけが対象です。
func TestNewlyRevealedTiles(t *testing.T) {
	lookup := testLookup(5)
	// (1,1) は既に可視
	lookup[schnoz.BuildTileLookupID(schnoz.Coordinate{Row: 1, Col: 1})].Visible = true

	revealed, gameErr := NewlyRevealedTiles(lookup, []schnoz.Coordinate{{Row: 1, Col: 2}})
	if gameErr != nil {
		t.Fatalf("Expected reveal to succeed, but got: %v", gameErr)
	}

	// (1,2) 自身と8近傍9セルのうち、可視の (1,1) を除く8セル
	if len(revealed) != 8 {
		t.Fatalf("Expected 8 newly revealed tiles, but got %d", len(revealed))
	}
	for _, tile := range revealed {
		if tile.Row == 1 && tile.Col == 1 {
			t.Error("Expected the already visible tile not to appear in the diff.")
		}
	}
}

// TestNewlyRevealedTiles_NoDuplicates は隣接する配置セル同士で
// 近傍が重複しないことをテストします。
func TestNewlyRevealedTiles_NoDuplicates(t *testing.T) {
	lookup := testLookup(5)
	revealed, gameErr := NewlyRevealedTiles(lookup, []schnoz.Coordinate{{Row: 2, Col: 2}, {Row: 2, Col: 3}})
	if gameErr != nil {
		t.Fatalf("Expected reveal to succeed, but got: %v", gameErr)
	}

	seen := make(map[string]bool, len(revealed))
	for _, tile := range revealed {
		id := schnoz.BuildTileLookupID(tile.Coordinate())
		if seen[id] {
			t.Errorf("Tile %s appears twice in the diff", id)
		}
		seen[id] = true
	}
	// 2セル横並びの視界は 3×4 の枠
	if len(revealed) != 12 {
		t.Errorf("Expected 12 revealed tiles, but got %d", len(revealed))
	}
}

// TestNewlyRevealedTiles_MissingTile は盤面データの不整合をエラーとして
// 報告することをテストします。
func TestNewlyRevealedTiles_MissingTile(t *testing.T) {
	lookup := testLookup(5)
	_, gameErr := NewlyRevealedTiles(lookup, []schnoz.Coordinate{{Row: 9, Col: 9}})
	if gameErr == nil {
		t.Fatal("Expected an error for a placement outside the map.")
	}
	if gameErr.StatusCode != 500 {
		t.Errorf("Expected status 500, but got %d", gameErr.StatusCode)
	}
}
