package dto

// Websocket control and push messages. The first inbound message on every
// connection must be a WSAuthorization; everything after that is server push.

const (
	WSTypeAuthorization = "authorization"
	WSTypeImage         = "image"
	WSTypeError         = "error"
)

type WSAuthorization struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type WSImage struct {
	Type     string `json:"type"`
	CameraID int    `json:"camera_id"`
	Image    string `json:"image"` // base64 JPEG
}

type WSError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
