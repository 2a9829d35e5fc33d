package models

// GameError は想定内の検証エラー（手番違反、ルール違反、ポイント不足など）を
// 表す値です。呼び出し側は errors.As で判別し、状態を変更せずにそのまま
// クライアントへ中継します。インフラ障害は通常の error として伝播し、
// ディスパッチ層が接続を切断して対応します。
type GameError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// Error は error インターフェースを満たします。
func (e *GameError) Error() string {
	return e.Message
}

// NewGameError は GameError を生成します。
func NewGameError(message string, statusCode int) *GameError {
	return &GameError{Message: message, StatusCode: statusCode}
}
