package obs

import (
	"crypto/sha256"
	"encoding/base64"
)

// Request types of obs-websocket 4.x used by the relay
const (
	requestGetAuthRequired = "GetAuthRequired"
	requestAuthenticate    = "Authenticate"
	requestGetSceneList    = "GetSceneList"
	requestSetCurrentScene = "SetCurrentScene"
)

// envelope covers both request responses (message-id) and unsolicited
// events (update-type).
type envelope struct {
	MessageID  string `json:"message-id"`
	UpdateType string `json:"update-type"`
	Status     string `json:"status"`
	Error      string `json:"error"`
}

type authRequiredResponse struct {
	AuthRequired bool   `json:"authRequired"`
	Challenge    string `json:"challenge"`
	Salt         string `json:"salt"`
}

type sceneListResponse struct {
	CurrentScene string  `json:"current-scene"`
	Scenes       []Scene `json:"scenes"`
}

// authResponse computes base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secretHash := sha256.Sum256([]byte(password + salt))
	secret := base64.StdEncoding.EncodeToString(secretHash[:])

	authHash := sha256.Sum256([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(authHash[:])
}
