package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	schnozservice "github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/services/schnoz"
)

// マッチ作成時のデフォルト設定
const (
	DefaultMaxTurns  = 12
	DefaultMapSize   = 11
	DefaultRulesetID = schnozservice.RulesetStandard
)

// upgrader はHTTP接続をWebSocketプロトコルにアップグレードするための設定です。
// CheckOrigin はクロスオリジンリクエストを許可するかどうかを制御します。
// 開発中は true で良いですが、本番環境では適切な Origin チェックを行うべきです。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// すべてのOriginからの接続を許可 (開発用)
		return true
	},
}

// MatchHandler はマッチ関連のHTTPリクエスト（作成、参加、取得、WebSocket接続）を処理します。
type MatchHandler struct {
	store          database.Store
	sessionManager *schnozservice.SessionManager
}

// NewMatchHandler は新しい MatchHandler インスタンスを作成します。
//
// Parameters:
//   store : 永続化ストア
//   sm    : セッションマネージャーへのポインタ
// Returns:
//   *MatchHandler: 新しく作成された MatchHandler のポインタ
func NewMatchHandler(store database.Store, sm *schnozservice.SessionManager) *MatchHandler {
	return &MatchHandler{
		store:          store,
		sessionManager: sm,
	}
}

// WriteErrorResponse はエラーレスポンスをJSON形式で書き込みます。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WriteJSONResponse はJSONレスポンスを書き込みます。
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError は GameError ならそのステータスで、それ以外は500で応答します。
func writeError(w http.ResponseWriter, err error) {
	var gameErr *models.GameError
	if errors.As(err, &gameErr) {
		WriteErrorResponse(w, gameErr.StatusCode, gameErr.Message)
		return
	}
	WriteErrorResponse(w, http.StatusInternalServerError, err.Error())
}

// CreateMatch は新しいマッチを作成するためのHTTPハンドラーです。
// リクエストボディでゲーム設定を上書きでき、省略時はデフォルト値が使われます。
func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string  `json:"userId"`
		MaxTurns  *int    `json:"maxTurns"`
		MapSize   *int    `json:"mapSize"`
		RulesetID *string `json:"rulesetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "リクエストボディのパースに失敗しました")
		return
	}
	if req.UserID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "ユーザーIDが必要です")
		return
	}

	settings := &models.GameSettings{
		MaxTurns:  DefaultMaxTurns,
		MapSize:   DefaultMapSize,
		RulesetID: DefaultRulesetID,
	}
	if req.MaxTurns != nil {
		settings.MaxTurns = *req.MaxTurns
	}
	if req.MapSize != nil {
		settings.MapSize = *req.MapSize
	}
	if req.RulesetID != nil {
		settings.RulesetID = *req.RulesetID
	}
	if settings.MapSize%2 == 0 || settings.MapSize < 3 {
		WriteErrorResponse(w, http.StatusBadRequest, "マップサイズは3以上の奇数である必要があります")
		return
	}
	if settings.MaxTurns < 1 {
		WriteErrorResponse(w, http.StatusBadRequest, "最大ターン数は1以上である必要があります")
		return
	}

	rich, err := h.store.CreateMatch(req.UserID, settings)
	if err != nil {
		log.Printf("[MatchHandler] Failed to create match for user %s: %v", req.UserID, err)
		writeError(w, err)
		return
	}

	WriteJSONResponse(w, http.StatusCreated, rich)
}

// JoinMatch は既存のマッチに参加するためのHTTPハンドラーです。
// 開始前のマッチにのみ参加でき、参加者は2人までです。
func (h *MatchHandler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchID"]
	if matchID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "マッチIDが必要です")
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "リクエストボディのパースに失敗しました")
		return
	}
	if req.UserID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "ユーザーIDが必要です")
		return
	}

	match, err := h.store.MatchByID(matchID)
	if err != nil {
		WriteErrorResponse(w, http.StatusNotFound, "指定されたマッチは見つかりませんでした")
		return
	}
	if match.Status != models.MatchStatusCreated {
		WriteErrorResponse(w, http.StatusBadRequest, "開始済みのマッチには参加できません")
		return
	}

	participants, err := h.store.ParticipantsByMatchID(matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(participants) >= 2 {
		WriteErrorResponse(w, http.StatusBadRequest, "マッチは既に満員です")
		return
	}

	participant, err := h.store.AddParticipant(matchID, req.UserID)
	if err != nil {
		log.Printf("[MatchHandler] User %s failed to join match %s: %v", req.UserID, matchID, err)
		writeError(w, err)
		return
	}

	WriteJSONResponse(w, http.StatusOK, participant)
}

// GetMatch はマッチの現在の集約スナップショットを返すハンドラーです。
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchID"]
	if matchID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "マッチIDが必要です")
		return
	}

	rich, err := h.store.MatchRichByID(matchID)
	if err != nil {
		WriteErrorResponse(w, http.StatusNotFound, "指定されたマッチは見つかりませんでした")
		return
	}

	WriteJSONResponse(w, http.StatusOK, rich)
}

// HandleWebSocketConnection はHTTP接続をWebSocketプロトコルにアップグレードし、
// その後のメッセージ送受信をセッションマネージャーに引き渡します。
// ユーザーIDはクエリパラメータで指定します。
func (h *MatchHandler) HandleWebSocketConnection(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchID"]
	if matchID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "WebSocket接続にはマッチIDが必要です")
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "WebSocket接続にはユーザーIDが必要です")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[MatchHandler] Failed to upgrade to websocket for match %s: %v", matchID, err)
		return // アップグレード失敗時はエラーログのみ
	}

	log.Printf("[MatchHandler] WebSocket upgraded for match %s (user %s)", matchID, userID)

	// RegisterClient内で readPump と writePump ゴルーチンが開始されるため、
	// ここではコネクションを引き渡すだけです。登録失敗時の切断も
	// SessionManager 側で処理されます。
	if err := h.sessionManager.RegisterClient(matchID, userID, conn); err != nil {
		log.Printf("[MatchHandler] Failed to register client %s to match %s: %v", userID, matchID, err)
	}
}
