package handler

import (
	"concord/internal/app/chat"
	"concord/internal/app/storage"
	"concord/internal/app/store"
	"concord/internal/configs"
)

type AppDeps struct {
	Hub            *chat.Hub
	Config         *configs.AppConfig
	StorageService storage.StorageService
	Users          store.UserStore
}
