package schnoz

// SpecialType は1手にのみ作用する購入可能なスペシャル効果の識別子です。
type SpecialType string

const (
	// SpecialExpandBuildRadiusByOne は隣接ルールの建築半径を
	// その1手に限り 1 → 2 に拡張します。
	SpecialExpandBuildRadiusByOne SpecialType = "EXPAND_BUILD_RADIUS_BY_1"
)

// Special はボーナスポイントを消費して1手に適用される効果です。
type Special struct {
	Type SpecialType `json:"type"`
	Cost int         `json:"cost"`
}

// ExpandBuildRadiusByOne は建築半径拡張スペシャルの定義です。
var ExpandBuildRadiusByOne = Special{
	Type: SpecialExpandBuildRadiusByOne,
	Cost: 5,
}

// SpecialByType は既知のスペシャル定義を返します。
// クライアントから渡された Cost は信用せず、常にこの定義を参照します。
func SpecialByType(specialType SpecialType) (Special, bool) {
	switch specialType {
	case SpecialExpandBuildRadiusByOne:
		return ExpandBuildRadiusByOne, true
	default:
		return Special{}, false
	}
}

// TotalCost はスペシャルの合計コストを返します。未知のタイプは定義から
// 解決できないため、渡された Cost をそのまま加算します。
func TotalCost(specials []Special) int {
	total := 0
	for _, special := range specials {
		if known, ok := SpecialByType(special.Type); ok {
			total += known.Cost
			continue
		}
		total += special.Cost
	}
	return total
}
