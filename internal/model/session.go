package model

type Session struct {
	UserID   int64  `json:"userID"`
	Username string `json:"username"`
}
