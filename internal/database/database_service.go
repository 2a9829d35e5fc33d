package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq" // PostgreSQLドライバー
)

// DatabaseService はデータベース接続を保持するサービスです。
type DatabaseService struct {
	DB *sql.DB
}

// NewDatabaseService は新しい DatabaseService を作成し、データベース接続を確立します。
//
// Parameters:
//   databaseURL : PostgreSQL接続文字列
// Returns:
//   *DatabaseService: 初期化されたサービスのポインタ
//   error : 接続に失敗した場合
func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Printf("[Store] sql.Openに失敗しました: %v", err)
		return nil, fmt.Errorf("データベースへの接続オブジェクト作成に失敗しました: %w", err)
	}

	// データベース接続の確認 (Ping)
	if err := db.Ping(); err != nil {
		log.Printf("[Store] db.Pingに失敗しました: %v", err)
		return nil, fmt.Errorf("データベースのPingに失敗しました。接続情報やネットワークを確認してください: %w", err)
	}

	log.Println("[Store] データベースに正常に接続しました。")
	return &DatabaseService{DB: db}, nil
}

// Close はデータベース接続を閉じます。
func (s *DatabaseService) Close() error {
	return s.DB.Close()
}
