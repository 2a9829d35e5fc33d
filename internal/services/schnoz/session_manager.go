package schnoz

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/models/schnoz"
)

// クライアントから受け付けるメッセージタイプ
const (
	MessageTypeStartMatch         = "start-match"
	MessageTypeUpdateGameSettings = "update-game-settings"
	MessageTypeMakeMove           = "make-move"
	MessageTypeHover              = "hover"
	MessageTypeDisconnect         = "disconnect-from-match"
)

// サーバーから配信するイベントタイプ
const (
	EventTypePlayerConnected     = "player-connected-to-match"
	EventTypeDisconnected        = "disconnected-from-match"
	EventTypeStartedMatch        = "started-match"
	EventTypeUpdatedGameSettings = "updated-game-settings"
	EventTypeMadeMove            = "made-move"
	EventTypeHovered             = "hovered"
	EventTypeTimeRemaining       = "time-remaining"
	EventTypeError               = "error"
)

// Client は1つのWebSocket接続を表します。SessionID は接続ごとに一意で、
// 同じユーザーの再接続時には古いセッションが破棄されます。
type Client struct {
	SessionID string          // 接続ごとのセッションID
	UserID    string          // このクライアントに紐づくユーザーのID
	MatchID   string          // 接続先のマッチID
	Conn      *websocket.Conn // クライアントとの実際のWebSocketコネクション
	Send      chan []byte     // クライアントへメッセージを送信するためのバッファ付きチャネル
	closed    bool            // チャネルが閉じられたかどうかのフラグ
	mu        sync.Mutex      // closedフラグ保護用
}

// SafeSend は安全にチャネルにメッセージを送信します（closedチェック付き）
func (c *Client) SafeSend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false // 既に閉じられている
	}

	select {
	case c.Send <- message:
		return true // 送信成功
	default:
		return false // チャネルがフル
	}
}

// SafeClose は安全にチャネルを閉じます
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

// clientMessage はクライアントから受信するメッセージの外側の封筒です。
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// serverEvent はクライアントへ配信するイベントの封筒です。
type serverEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// makeMovePayload は make-move メッセージのペイロードです。
type makeMovePayload struct {
	ConstellationID schnoz.ConstellationID `json:"constellationId"`
	Target          schnoz.Coordinate      `json:"target"`
	Transform       schnoz.Transform       `json:"transform"`
	IgnoredRules    []string               `json:"ignoredRules"`
	Specials        []schnoz.Special       `json:"specials"`
}

// hoverRelay は opponent-hover イベントのペイロードです。
// ホバー内容はサーバーでは解釈せず、そのまま相手に中継します。
type hoverRelay struct {
	UserID string          `json:"userId"`
	Hover  json.RawMessage `json:"hover"`
}

// SessionManager はマッチインスタンスのレジストリとWebSocketクライアント
// 接続の全体を管理します。アプリケーション内でシングルトンとして動作します。
type SessionManager struct {
	instances  map[string]*MatchInstance // matchID -> MatchInstance のマップ
	clients    map[string]*Client        // sessionID -> Client のマップ (現在接続中の全WebSocketクライアント)
	register   chan *Client              // 新しいクライアント接続の登録リクエスト用チャネル
	unregister chan *Client              // クライアント切断の登録解除リクエスト用チャネル
	quit       chan struct{}             // シャットダウン用チャネル
	mu         sync.RWMutex              // instances と clients マップへのアクセスを保護するためのRWMutex

	store        database.Store
	turnDuration time.Duration
}

// NewSessionManager は新しい SessionManager インスタンスを作成し、
// そのメインイベントループをバックグラウンドで開始します。
//
// Parameters:
//   store        : 永続化ストア
//   turnDuration : 1ターンの制限時間
// Returns:
//   *SessionManager: 初期化されたセッションマネージャーのポインタ
func NewSessionManager(store database.Store, turnDuration time.Duration) *SessionManager {
	sm := &SessionManager{
		instances:    make(map[string]*MatchInstance),
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		quit:         make(chan struct{}),
		store:        store,
		turnDuration: turnDuration,
	}
	go sm.Run()
	return sm
}

// Run は SessionManager のメインイベントループです。
// クライアントの登録/解除と、それに伴う接続イベントの配信を処理します。
func (sm *SessionManager) Run() {
	for {
		select {
		case client := <-sm.register:
			sm.mu.Lock()
			sm.clients[client.SessionID] = client
			sm.mu.Unlock()
			log.Printf("[SessionManager] Client registered: user=%s match=%s session=%s", client.UserID, client.MatchID, client.SessionID)

			// 接続時は全員にフルスナップショットを配信
			sm.broadcastConnected(client)

		case client := <-sm.unregister:
			sm.mu.Lock()
			if _, ok := sm.clients[client.SessionID]; ok {
				client.SafeClose()
				delete(sm.clients, client.SessionID)
				log.Printf("[SessionManager] Client unregistered: user=%s match=%s session=%s", client.UserID, client.MatchID, client.SessionID)
			}
			sm.mu.Unlock()

			sm.broadcastToMatch(client.MatchID, serverEvent{
				Type:    EventTypeDisconnected,
				Payload: map[string]string{"userId": client.UserID},
			}, client.SessionID)

			sm.evictInstanceIfIdle(client.MatchID)

		case <-sm.quit:
			log.Printf("[SessionManager] シャットダウンシグナルを受信、メインループを終了します")
			return
		}
	}
}

// RegisterClient は新しいWebSocketクライアントをSessionManagerに登録します。
// 同じユーザーの同じマッチへの既存接続は置き換えられます（再接続対応）。
//
// Parameters:
//   matchID : 接続先のマッチID
//   userID  : クライアントのユーザーID
//   conn    : WebSocketコネクション
// Returns:
//   error: 参加検証に失敗した場合
func (sm *SessionManager) RegisterClient(matchID, userID string, conn *websocket.Conn) error {
	instance, err := sm.instanceForMatch(matchID)
	if err != nil {
		sm.sendErrorAndClose(conn, err)
		return err
	}

	if _, err := instance.Connect(userID); err != nil {
		sm.sendErrorAndClose(conn, err)
		return err
	}

	// 既存の接続があれば先にクリーンアップ（再接続対応）
	sm.evictExistingSessions(matchID, userID)

	client := &Client{
		SessionID: uuid.New().String(),
		UserID:    userID,
		MatchID:   matchID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
	}

	go sm.readPump(client)
	go client.writePump()

	sm.register <- client
	return nil
}

// evictExistingSessions は同じユーザーの同じマッチへの既存セッションを
// 全て破棄します。1ユーザー・1マッチにつきライブ接続は常に1つです。
func (sm *SessionManager) evictExistingSessions(matchID, userID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, existing := range sm.clients {
		if existing.UserID == userID && existing.MatchID == matchID {
			log.Printf("[SessionManager] Replacing existing connection for user %s in match %s", userID, matchID)
			if existing.Conn != nil {
				existing.Conn.Close()
			}
			existing.SafeClose()
			delete(sm.clients, existing.SessionID)
		}
	}
}

// broadcastConnected は接続イベントをフルスナップショット付きで
// マッチの全クライアントへ配信します。
func (sm *SessionManager) broadcastConnected(client *Client) {
	instance, err := sm.instanceForMatch(client.MatchID)
	if err != nil {
		log.Printf("[SessionManager] Failed to load instance for connect broadcast: %v", err)
		return
	}
	rich, err := instance.Snapshot()
	if err != nil {
		log.Printf("[SessionManager] Failed to snapshot match %s: %v", client.MatchID, err)
		return
	}
	sm.broadcastToMatch(client.MatchID, serverEvent{
		Type: EventTypePlayerConnected,
		Payload: map[string]any{
			"userId": client.UserID,
			"match":  rich,
		},
	}, "")
}

// readPump はクライアントからのWebSocketメッセージを読み込み、処理します。
func (sm *SessionManager) readPump(client *Client) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SessionManager] Panic in readPump for user %s: %v", client.UserID, r)
		}
		sm.unregister <- client
		if client.Conn != nil {
			client.Conn.Close()
		}
	}()

	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(300 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(300 * time.Second))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[SessionManager] WebSocket unexpected close error for user %s: %v", client.UserID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("[SessionManager] Failed to unmarshal message from %s: %v", client.UserID, err)
			sm.sendError(client, models.NewGameError("Malformed message", 400))
			continue
		}

		if msg.Type == MessageTypeDisconnect {
			return
		}
		sm.handleMessage(client, msg)
	}
}

// handleMessage はクライアントメッセージをマッチインスタンスの操作へ
// ディスパッチします。検証エラー（GameError）は送信者にのみ通知し、
// インフラ障害は接続を切断します。
func (sm *SessionManager) handleMessage(client *Client, msg clientMessage) {
	instance, err := sm.instanceForMatch(client.MatchID)
	if err != nil {
		sm.dispatchError(client, err)
		return
	}

	switch msg.Type {
	case MessageTypeStartMatch:
		rich, err := instance.StartMatch(client.UserID)
		if err != nil {
			sm.dispatchError(client, err)
			return
		}
		sm.broadcastToMatch(client.MatchID, serverEvent{Type: EventTypeStartedMatch, Payload: rich}, "")

	case MessageTypeUpdateGameSettings:
		var update models.GameSettingsUpdate
		if err := json.Unmarshal(msg.Payload, &update); err != nil {
			sm.sendError(client, models.NewGameError("Malformed game settings payload", 400))
			return
		}
		settings, err := instance.SetGameSettings(client.UserID, update)
		if err != nil {
			sm.dispatchError(client, err)
			return
		}
		sm.broadcastToMatch(client.MatchID, serverEvent{Type: EventTypeUpdatedGameSettings, Payload: settings}, "")

	case MessageTypeMakeMove:
		var payload makeMovePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			sm.sendError(client, models.NewGameError("Malformed move payload", 400))
			return
		}
		result, err := instance.MakeMove(
			client.UserID,
			payload.ConstellationID,
			payload.Target,
			payload.Transform,
			payload.IgnoredRules,
			payload.Specials,
		)
		if err != nil {
			sm.dispatchError(client, err)
			return
		}
		sm.broadcastToMatch(client.MatchID, serverEvent{Type: EventTypeMadeMove, Payload: result}, "")
		sm.evictInstanceIfIdle(client.MatchID)

	case MessageTypeHover:
		// ホバーは状態を持たない純粋な中継で、相手にのみ送信します
		sm.broadcastToMatch(client.MatchID, serverEvent{
			Type:    EventTypeHovered,
			Payload: hoverRelay{UserID: client.UserID, Hover: msg.Payload},
		}, client.SessionID)

	default:
		sm.sendError(client, models.NewGameError("Unknown message type: "+msg.Type, 400))
	}
}

// dispatchError はエラーの種別に応じてクライアントへの対応を分けます。
// 想定内の検証エラーはエラーイベントとして中継し、それ以外の障害は
// 通知のうえ接続を切断します。
func (sm *SessionManager) dispatchError(client *Client, err error) {
	var gameErr *models.GameError
	if errors.As(err, &gameErr) {
		sm.sendError(client, gameErr)
		return
	}
	log.Printf("[SessionManager] Internal error for user %s in match %s: %v", client.UserID, client.MatchID, err)
	sm.sendError(client, models.NewGameError("Internal server error", 500))
	if client.Conn != nil {
		client.Conn.Close()
	}
}

// sendError は GameError をエラーイベントとして送信者に返します。
func (sm *SessionManager) sendError(client *Client, gameErr *models.GameError) {
	sm.sendToClient(client, serverEvent{Type: EventTypeError, Payload: gameErr})
}

// sendToClient は1クライアントへイベントを送信します。
func (sm *SessionManager) sendToClient(client *Client, event serverEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("[SessionManager] Error marshaling event %s: %v", event.Type, err)
		return
	}
	if !client.SafeSend(message) {
		log.Printf("[SessionManager] Failed to send to client %s (channel closed or full)", client.UserID)
	}
}

// broadcastToMatch はマッチに接続中の全クライアントへイベントを配信します。
// exceptSessionID が空でない場合、そのセッションへは送信しません。
func (sm *SessionManager) broadcastToMatch(matchID string, event serverEvent, exceptSessionID string) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("[SessionManager] Error marshaling event %s for match %s: %v", event.Type, matchID, err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, client := range sm.clients {
		if client.MatchID != matchID || client.SessionID == exceptSessionID {
			continue
		}
		if !client.SafeSend(message) {
			log.Printf("[SessionManager] Failed to send to client %s (channel closed or full)", client.UserID)
		}
	}
}

// instanceForMatch はマッチインスタンスを取得し、未登録ならストアから
// 読み込んでレジストリに追加します。
func (sm *SessionManager) instanceForMatch(matchID string) (*MatchInstance, error) {
	sm.mu.RLock()
	instance, ok := sm.instances[matchID]
	sm.mu.RUnlock()
	if ok {
		return instance, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if instance, ok := sm.instances[matchID]; ok {
		return instance, nil
	}
	instance, err := NewMatchInstance(matchID, sm.store, sm.turnDuration)
	if err != nil {
		return nil, err
	}
	instance.SetTimeRemainingNotifier(func(remaining TimeRemaining) {
		sm.broadcastToMatch(matchID, serverEvent{Type: EventTypeTimeRemaining, Payload: remaining}, "")
	})
	sm.instances[matchID] = instance
	log.Printf("[SessionManager] MatchInstance created for match %s", matchID)
	return instance, nil
}

// evictInstanceIfIdle は終局済みかつ接続が残っていないマッチの
// インスタンスをレジストリから破棄します。
func (sm *SessionManager) evictInstanceIfIdle(matchID string) {
	sm.mu.Lock()
	instance, ok := sm.instances[matchID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	for _, client := range sm.clients {
		if client.MatchID == matchID {
			sm.mu.Unlock()
			return
		}
	}
	sm.mu.Unlock()

	if !instance.IsFinished() {
		return
	}

	sm.mu.Lock()
	delete(sm.instances, matchID)
	sm.mu.Unlock()
	instance.Close()
	log.Printf("[SessionManager] MatchInstance evicted for finished match %s", matchID)
}

// sendErrorAndClose は登録前の接続へエラーを通知して切断します。
func (sm *SessionManager) sendErrorAndClose(conn *websocket.Conn, err error) {
	gameErr := &models.GameError{}
	if !errors.As(err, &gameErr) {
		gameErr = models.NewGameError("Internal server error", 500)
	}
	if message, marshalErr := json.Marshal(serverEvent{Type: EventTypeError, Payload: gameErr}); marshalErr == nil {
		conn.WriteMessage(websocket.TextMessage, message)
	}
	conn.Close()
}

// writePump は Client の Send チャネルからのメッセージをWebSocket
// コネクションに書き込みます。クライアントごとにこのゴルーチンが動作します。
func (c *Client) writePump() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Client] Panic in writePump for user %s: %v", c.UserID, r)
		}
		if c.Conn != nil {
			c.Conn.Close()
		}
	}()

	// ピング送信のタイマー設定（コネクションの生存確認）
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// マネージャーがチャネルを閉じた場合 (クライアントの登録解除時など)
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Client] Error writing message for user %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[Client] Error sending ping for user %s: %v", c.UserID, err)
				return
			}
		}
	}
}

// Shutdown はSessionManagerを安全にシャットダウンします
func (sm *SessionManager) Shutdown() {
	log.Printf("[SessionManager] シャットダウン開始...")

	close(sm.quit)

	sm.mu.Lock()
	for _, client := range sm.clients {
		if client.Conn != nil {
			client.Conn.Close()
		}
		client.SafeClose()
	}
	sm.clients = make(map[string]*Client)

	for _, instance := range sm.instances {
		instance.Close()
	}
	sm.instances = make(map[string]*MatchInstance)
	sm.mu.Unlock()

	log.Printf("[SessionManager] シャットダウン完了")
}
