package handler

import (
	"net/http"
	"time"

	"github.com/postpilot/link-server-go/internal/httputil"
	"github.com/postpilot/link-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatSocialAccount(account *model.SocialAccount) map[string]any {
	return map[string]any{
		"platform":     account.Platform,
		"remoteId":     account.RemoteID,
		"remoteName":   account.RemoteName,
		"connected":    account.Connected,
		"lastSyncedAt": formatTime(account.LastSyncedAt),
		"createdAt":    account.CreatedAt.Format(time.RFC3339),
	}
}
