package schnoz

import "fmt"

// Coordinate はマップ上のマス目の位置（行・列）を表します。
// コンステレーションの相対座標にも、マップ上の絶対座標にも使用されます。
type Coordinate struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// adjacentOffsets は8方向（上下左右＋斜め）の隣接オフセットです。
var adjacentOffsets = []Coordinate{
	{Row: -1, Col: -1},
	{Row: -1, Col: 0},
	{Row: -1, Col: 1},
	{Row: 0, Col: -1},
	{Row: 0, Col: 1},
	{Row: 1, Col: -1},
	{Row: 1, Col: 0},
	{Row: 1, Col: 1},
}

// AdjacentCoordinates は指定された座標の8近傍の座標を返します。
// マップ境界のチェックは行いません（存在しないタイルはルックアップ時に除外されます）。
func AdjacentCoordinates(coordinate Coordinate) []Coordinate {
	adjacent := make([]Coordinate, 0, len(adjacentOffsets))
	for _, offset := range adjacentOffsets {
		adjacent = append(adjacent, Coordinate{
			Row: coordinate.Row + offset.Row,
			Col: coordinate.Col + offset.Col,
		})
	}
	return adjacent
}

// AdjacentCoordinatesOfConstellation はコンステレーション全体の隣接座標を返します。
// 各マスの8近傍の和集合から、コンステレーション自身のマスを除いたものです。
// 建築ルール（adjacent-to-ally）の半径1近傍として使用されます。
//
// Parameters:
//   constellation : 絶対座標に変換済みのコンステレーション
// Returns:
//   []Coordinate: 重複を除いた隣接座標のリスト
func AdjacentCoordinatesOfConstellation(constellation []Coordinate) []Coordinate {
	inConstellation := make(map[Coordinate]bool, len(constellation))
	for _, coordinate := range constellation {
		inConstellation[coordinate] = true
	}

	seen := make(map[Coordinate]bool)
	adjacent := make([]Coordinate, 0, len(constellation)*len(adjacentOffsets))
	for _, coordinate := range constellation {
		for _, candidate := range AdjacentCoordinates(coordinate) {
			if inConstellation[candidate] || seen[candidate] {
				continue
			}
			seen[candidate] = true
			adjacent = append(adjacent, candidate)
		}
	}
	return adjacent
}

// ExpandNeighborhood は近傍を radius 段階まで反復的に拡張します。
// radius=1 はコンステレーションの直接の隣接座標、radius=2 はさらにその隣接を含みます。
// EXPAND_BUILD_RADIUS_BY_1 スペシャル適用時の判定に使用されます。
func ExpandNeighborhood(constellation []Coordinate, radius int) []Coordinate {
	neighborhood := AdjacentCoordinatesOfConstellation(constellation)
	for step := 1; step < radius; step++ {
		expanded := AdjacentCoordinatesOfConstellation(append(append([]Coordinate{}, constellation...), neighborhood...))
		neighborhood = append(neighborhood, expanded...)
	}
	return neighborhood
}

// BuildTileLookupID は TileLookup のキー（"row_col" 形式）を生成します。
func BuildTileLookupID(coordinate Coordinate) string {
	return fmt.Sprintf("%d_%d", coordinate.Row, coordinate.Col)
}
