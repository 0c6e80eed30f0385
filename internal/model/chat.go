// Package model はドメインモデルを定義する。
package model

import "time"

// ChatMessage は共有チャットルームの投稿を表す。
// 投稿者の表示名と写真は投稿時点の値を保持する。
type ChatMessage struct {
	ID           string
	UserID       string
	UserName     string
	UserPhotoURL *string
	Text         string
	CreatedAt    time.Time
}
