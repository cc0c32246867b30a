package handler

import (
	"rtchat/internal/app/chat"
	"rtchat/internal/app/db"
	"rtchat/internal/app/storage"
	"rtchat/internal/configs"
	"rtchat/internal/pkg/auth/jwt"
)

// AppDeps bundles the collaborators shared by the HTTP handlers. Storage is
// nil when avatar storage is not configured; the file routes are not mounted
// in that case.
type AppDeps struct {
	Config  *configs.AppConfig
	Router  *chat.Router
	Store   *db.Store
	Tokens  *jwt.Service
	Storage storage.StorageService
}
