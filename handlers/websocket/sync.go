// Package websocket attaches streaming connections to live document
// sessions. The wire format is a one-byte frame type followed by an opaque
// payload: update frames are merged into the document and relayed to the
// other editors, awareness frames are relayed untouched.
package websocket

import (
	"net/http"
	"sync"

	"collab-space/session"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	// FrameUpdate carries an encoded document update.
	FrameUpdate byte = 0
	// FrameAwareness carries presence state, passed through unchanged.
	FrameAwareness byte = 1
)

const sendBufferSize = 256

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Handler routes upgraded connections to document sessions and relays frames
// between the editors of each document.
type Handler struct {
	registry *session.Registry
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

// NewHandler creates a connection handler over the given registry.
func NewHandler(registry *session.Registry) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The API is already open to all origins; the socket follows.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
	}
}

// Handle upgrades the request and attaches the connection to the session for
// the documentID route parameter. Session creation goes through GetOrCreate,
// which guarantees the document is hydrated before any frame is processed.
func (h *Handler) Handle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "documentID")
		if docID == "" {
			http.Error(w, "document id is required", http.StatusBadRequest)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("Websocket upgrade failed")
			return
		}

		sess, err := h.registry.GetOrCreate(r.Context(), docID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":       err,
				"document_id": docID,
			}).Error("Failed to open session for connection")
			conn.Close()
			return
		}

		h.serve(sess, conn)
	}
}

func (h *Handler) serve(sess *session.Session, conn *websocket.Conn) {
	c := &client{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	room, ok := h.rooms[sess.ID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[sess.ID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	count := sess.AddSubscriber()
	log := logrus.WithFields(logrus.Fields{
		"document_id":   sess.ID,
		"connection_id": c.id,
	})
	log.WithField("subscribers", count).Info("Connection attached")

	// The joining client receives the full document state first, so its
	// replica starts from everything the server knows.
	c.send <- frame(FrameUpdate, sess.Doc.EncodeState())

	done := make(chan struct{})
	go h.writeLoop(c, sess, done)
	h.readLoop(c, sess, log)
	close(done)

	h.mu.Lock()
	delete(h.rooms[sess.ID], c)
	if len(h.rooms[sess.ID]) == 0 {
		delete(h.rooms, sess.ID)
	}
	h.mu.Unlock()

	count = sess.RemoveSubscriber()
	log.WithField("subscribers", count).Info("Connection detached")
}

func (h *Handler) readLoop(c *client, sess *session.Session, log *logrus.Entry) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("Connection closed unexpectedly")
			}
			return
		}
		if msgType != websocket.BinaryMessage || len(data) < 1 {
			continue
		}

		select {
		case <-sess.Done():
			// The document was deleted out from under this connection.
			return
		default:
		}

		switch data[0] {
		case FrameUpdate:
			if err := sess.Doc.ApplyUpdate(data[1:]); err != nil {
				log.WithError(err).Warn("Dropping undecodable update frame")
				continue
			}
			h.broadcast(sess.ID, c, data)
		case FrameAwareness:
			h.broadcast(sess.ID, c, data)
		default:
			log.WithField("frame_type", data[0]).Debug("Ignoring unknown frame type")
		}
	}
}

func (h *Handler) writeLoop(c *client, sess *session.Session, done <-chan struct{}) {
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-sess.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "document deleted"))
			return
		case <-done:
			return
		}
	}
}

// broadcast relays a frame to every other connection on the same document. A
// client whose send buffer is full misses the frame rather than blocking the
// room; it converges again from the full-state frame on its next connect.
func (h *Handler) broadcast(docID string, from *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for peer := range h.rooms[docID] {
		if peer == from {
			continue
		}
		select {
		case peer.send <- data:
		default:
			logrus.WithField("connection_id", peer.id).Warn("Dropping frame for slow connection")
		}
	}
}

func frame(frameType byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, frameType)
	return append(buf, payload...)
}
