package ws

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/pkg/dto"
)

type fakeVerifier struct {
	valid string
}

func (f *fakeVerifier) VerifyCredential(token string) (int64, error) {
	if token == f.valid {
		return 1, nil
	}
	return 0, errors.New("invalid token")
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(&fakeVerifier{valid: "good-token"})
	go hub.Run()

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func authorize(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	msg, err := json.Marshal(dto.WSAuthorization{Type: dto.WSTypeAuthorization, Token: token})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
}

func readImage(t *testing.T, conn *websocket.Conn) dto.WSImage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var img dto.WSImage
	require.NoError(t, json.Unmarshal(raw, &img))
	return img
}

func TestHub_AuthenticatedClientReceivesFrames(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dialWS(t, srv)
	authorize(t, conn, "good-token")

	// Wait for the session to become eligible for broadcast.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.authenticated() {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	frame := []byte{0xff, 0xd8, 0xff}
	hub.PublishFrame(&models.PreviewFrame{CameraID: 3, Image: frame})

	img := readImage(t, conn)
	assert.Equal(t, dto.WSTypeImage, img.Type)
	assert.Equal(t, 3, img.CameraID)
	decoded, err := base64.StdEncoding.DecodeString(img.Image)
	require.NoError(t, err)
	assert.Equal(t, frame, decoded)
}

func TestHub_InvalidTokenGetsOneErrorThenClose(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dialWS(t, srv)
	authorize(t, conn, "wrong-token")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var wsErr dto.WSError
	require.NoError(t, json.Unmarshal(raw, &wsErr))
	assert.Equal(t, dto.WSTypeError, wsErr.Type)
	assert.Equal(t, "could not validate credentials", wsErr.Message)

	// Nothing else follows; the server drops the connection.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_FirstMessageMustBeAuthorization(t *testing.T) {
	_, srv := newTestHub(t)

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"image"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var wsErr dto.WSError
	require.NoError(t, json.Unmarshal(raw, &wsErr))
	assert.Equal(t, dto.WSTypeError, wsErr.Type)
}

func TestHub_UnauthenticatedClientReceivesNoFrames(t *testing.T) {
	hub, srv := newTestHub(t)

	silent := dialWS(t, srv)

	authed := dialWS(t, srv)
	authorize(t, authed, "good-token")

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.authenticated() {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	hub.PublishFrame(&models.PreviewFrame{CameraID: 1, Image: []byte{0x01}})

	// The authenticated peer gets the frame.
	img := readImage(t, authed)
	assert.Equal(t, 1, img.CameraID)

	// The silent peer gets nothing within the wait budget.
	require.NoError(t, silent.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := silent.ReadMessage()
	assert.Error(t, err)
}

// A session authenticated right after the register handoff must stay
// authenticated once the hub finishes admitting it. The broadcast is
// processed by the hub loop strictly after the register case, so a dropped
// frame here means registration reset the session state.
func TestHub_RegisterPreservesAuthenticatedState(t *testing.T) {
	hub := NewHub(&fakeVerifier{valid: "good-token"})
	go hub.Run()

	client := &Client{send: make(chan []byte, 1)}
	client.state.Store(stateUnauthenticated)
	hub.register <- client
	client.state.Store(stateAuthenticated)

	hub.PublishFrame(&models.PreviewFrame{CameraID: 5, Image: []byte{0x05}})

	select {
	case msg := <-client.send:
		assert.Contains(t, string(msg), `"camera_id":5`)
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not delivered to an authenticated session")
	}
}

// The error frame on a failed authorization must arrive every time, not just
// under friendly scheduling.
func TestHub_RejectionAlwaysDeliversErrorFrame(t *testing.T) {
	_, srv := newTestHub(t)

	for i := 0; i < 20; i++ {
		conn := dialWS(t, srv)
		authorize(t, conn, "wrong-token")

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "attempt %d: no error frame before close", i)

		var wsErr dto.WSError
		require.NoError(t, json.Unmarshal(raw, &wsErr))
		assert.Equal(t, dto.WSTypeError, wsErr.Type)
		conn.Close()
	}
}

func TestHub_BrokenPeerDoesNotStopDelivery(t *testing.T) {
	hub, srv := newTestHub(t)

	good1 := dialWS(t, srv)
	good2 := dialWS(t, srv)
	broken := dialWS(t, srv)
	for _, conn := range []*websocket.Conn{good1, good2, broken} {
		authorize(t, conn, "good-token")
	}

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		n := 0
		for c := range hub.clients {
			if c.authenticated() {
				n++
			}
		}
		return n == 3
	}, 2*time.Second, 10*time.Millisecond)

	// Kill one peer's transport out from under the hub.
	broken.Close()

	frame := &models.PreviewFrame{CameraID: 2, Image: []byte{0x02}}
	hub.PublishFrame(frame)

	img1 := readImage(t, good1)
	img2 := readImage(t, good2)
	assert.Equal(t, 2, img1.CameraID)
	assert.Equal(t, 2, img2.CameraID)

	// The dead peer is eventually pruned from the session set.
	assert.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		3*time.Second, 20*time.Millisecond)
}
