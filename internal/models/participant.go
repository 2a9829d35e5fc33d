package models

// Participant はマッチへの参加者です。
// 不変条件: (MatchID, UserID) の組はマッチ内で一意、Score は評価を通じて
// 単調非減少、BonusPoints は非負（スペシャル購入で消費可能）です。
type Participant struct {
	ID           string `json:"id"`
	MatchID      string `json:"matchId"`
	UserID       string `json:"userId"`
	PlayerNumber int    `json:"playerNumber"` // 参加順に割り当てられる席番号（0始まり）
	Score        int    `json:"score"`
	BonusPoints  int    `json:"bonusPoints"`
}
