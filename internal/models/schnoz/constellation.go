package schnoz

// ConstellationID は名前付きコンステレーション（ユニット配置形状）の識別子です。
type ConstellationID string

const (
	ConstellationShortI   ConstellationID = "SHORT_I"   // 横2マス
	ConstellationDiagonal ConstellationID = "DIAGONAL"  // 斜め2マス
	ConstellationCorner   ConstellationID = "CORNER"    // L字3マス
	ConstellationLongL    ConstellationID = "LONG_L"    // L字4マス
	ConstellationStairs   ConstellationID = "STAIRS"    // 階段3マス
	ConstellationSShape   ConstellationID = "S_SHAPE"   // S字4マス
	ConstellationGate     ConstellationID = "GATE"      // 門型4マス
)

// Constellation は1手で配置されるユニット群の形状です。
// Coordinates は原点 (0,0) を基準とした相対座標、Value は配置時に
// プレイヤーが獲得するボーナスポイントです。
type Constellation struct {
	ID          ConstellationID `json:"id"`
	Coordinates []Coordinate    `json:"coordinates"`
	Value       int             `json:"value"`
}

// constellations は全コンステレーションのカタログです。
// Value はマス数-1（大きい形状ほど高価値）としています。
var constellations = map[ConstellationID]Constellation{
	ConstellationShortI: {
		ID:          ConstellationShortI,
		Coordinates: []Coordinate{{0, 0}, {0, 1}},
		Value:       1,
	},
	ConstellationDiagonal: {
		ID:          ConstellationDiagonal,
		Coordinates: []Coordinate{{0, 0}, {1, 1}},
		Value:       1,
	},
	ConstellationCorner: {
		ID:          ConstellationCorner,
		Coordinates: []Coordinate{{0, 0}, {0, 1}, {1, 1}},
		Value:       2,
	},
	ConstellationLongL: {
		ID:          ConstellationLongL,
		Coordinates: []Coordinate{{0, 0}, {0, 1}, {0, 2}, {1, 2}},
		Value:       3,
	},
	ConstellationStairs: {
		ID:          ConstellationStairs,
		Coordinates: []Coordinate{{0, 0}, {0, 1}, {1, 2}},
		Value:       2,
	},
	ConstellationSShape: {
		ID:          ConstellationSShape,
		Coordinates: []Coordinate{{0, 0}, {0, 1}, {1, 1}, {1, 2}},
		Value:       3,
	},
	ConstellationGate: {
		ID:          ConstellationGate,
		Coordinates: []Coordinate{{0, 0}, {0, 1}, {2, 0}, {2, 1}},
		Value:       3,
	},
}

// AllConstellationIDs は全コンステレーションIDを固定順で返します。
// openCards の抽選元として使用されます。
func AllConstellationIDs() []ConstellationID {
	return []ConstellationID{
		ConstellationShortI,
		ConstellationDiagonal,
		ConstellationCorner,
		ConstellationLongL,
		ConstellationStairs,
		ConstellationSShape,
		ConstellationGate,
	}
}

// ConstellationByID はIDに対応するコンステレーションを返します。
func ConstellationByID(id ConstellationID) (Constellation, bool) {
	constellation, ok := constellations[id]
	return constellation, ok
}

// Transform はクライアントが要求するコンステレーションの向きです。
// RotatedClockwise は時計回り90度回転の回数 (0〜3)、Mirrored は列軸での反転です。
type Transform struct {
	RotatedClockwise int  `json:"rotatedClockwise"`
	Mirrored         bool `json:"mirrored"`
}

// TransformCoordinates は相対座標集合に反転→回転の順で変換を適用します。
// 反転は列の符号反転 (row, col) -> (row, -col)、時計回り90度回転は
// (row, col) -> (col, -row) です。原点 (0,0) は常に不動点なので、
// 変換後も TranslateCoordinatesTo の基準点として使用できます。
//
// 逆変換: Mirrored=false の場合は回転回数 (4-n)%4、Mirrored=true の場合は
// 同じ変換をもう一度適用すると元に戻ります。
func TransformCoordinates(coordinates []Coordinate, transform Transform) []Coordinate {
	transformed := make([]Coordinate, len(coordinates))
	for i, coordinate := range coordinates {
		current := coordinate
		if transform.Mirrored {
			current = Coordinate{Row: current.Row, Col: -current.Col}
		}
		rotations := ((transform.RotatedClockwise % 4) + 4) % 4
		for r := 0; r < rotations; r++ {
			current = Coordinate{Row: current.Col, Col: -current.Row}
		}
		transformed[i] = current
	}
	return transformed
}

// TranslateCoordinatesTo は相対座標集合を、原点がtargetに一致するよう平行移動します。
func TranslateCoordinatesTo(target Coordinate, coordinates []Coordinate) []Coordinate {
	translated := make([]Coordinate, len(coordinates))
	for i, coordinate := range coordinates {
		translated[i] = Coordinate{
			Row: target.Row + coordinate.Row,
			Col: target.Col + coordinate.Col,
		}
	}
	return translated
}
