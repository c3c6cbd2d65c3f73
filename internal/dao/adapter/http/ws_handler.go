package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"firestore-dao/internal/dao"
	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/replay"
	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/logger"
)

const localListOptions = "listOptions"

// Message types sent to websocket clients.
const (
	MessageSnapshot = "snapshot"
	MessageError    = "error"
)

// WebSocketMessage is pushed to a client whenever the observed list changes.
type WebSocketMessage struct {
	Type      string             `json:"type"`
	Documents []DocumentResponse `json:"documents,omitempty"`
	Error     *ErrorResponse     `json:"error,omitempty"`
}

// WebSocketHandler streams a live list of one DAO to websocket clients. The
// connection URL takes the same query parameters as the REST list endpoint.
type WebSocketHandler[M model.Model] struct {
	dao *dao.Dao[M]
	log logger.Logger
}

// NewWebSocketHandler creates a websocket handler for d.
func NewWebSocketHandler[M model.Model](d *dao.Dao[M], log logger.Logger) *WebSocketHandler[M] {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &WebSocketHandler[M]{dao: d, log: log.WithComponent("ws-handler")}
}

// RegisterRoutes registers the listen endpoint under prefix, for example
// "/ws/v1/listen/orgs/:id0/users".
func (h *WebSocketHandler[M]) RegisterRoutes(router fiber.Router, prefix string) {
	path := prefix + RoutePath(h.dao.Template())
	router.Get(path, h.upgrade, websocket.New(h.listen))
}

// upgrade rejects plain HTTP requests and parses the list options while the
// request is still available.
func (h *WebSocketHandler[M]) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	pathIDs := routeIDs(h.dao.Template(), func(name string) string { return c.Params(name) })
	opts, err := listOptions(pathIDs, fiberQuery(c))
	if err != nil {
		return writeError(c, err)
	}
	c.Locals(localListOptions, opts)
	return c.Next()
}

func (h *WebSocketHandler[M]) listen(conn *websocket.Conn) {
	subscriberID := uuid.NewString()
	log := h.log.WithFields(map[string]interface{}{"subscriberID": subscriberID, "template": h.dao.Template()})
	opts, _ := conn.Locals(localListOptions).(dao.ListOptions)

	// holds the latest undelivered message only
	updates := make(chan WebSocketMessage, 1)
	offer := func(msg WebSocketMessage) {
		for {
			select {
			case updates <- msg:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	// a cleared cache ends the subscription; the listener reads again
	cleared := make(chan struct{}, 1)
	subscribe := func() replay.Subscription {
		return h.dao.GetList(opts).Subscribe(
			func(models []M) {
				offer(WebSocketMessage{Type: MessageSnapshot, Documents: toDocuments(models)})
			},
			func(err error) {
				if apperrors.IsCacheCleared(err) {
					select {
					case cleared <- struct{}{}:
					default:
					}
					return
				}
				resp := toErrorResponse(err)
				offer(WebSocketMessage{Type: MessageError, Error: &resp})
			},
		)
	}
	sub := subscribe()
	defer func() { sub.Unsubscribe() }()
	log.Info("websocket listener started")
	defer log.Info("websocket listener closed")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-cleared:
			sub.Unsubscribe()
			sub = subscribe()
			log.Debug("cache cleared, listener resubscribed")
		case msg := <-updates:
			if err := conn.WriteJSON(msg); err != nil {
				log.Warnf("websocket write failed: %v", err)
				return
			}
			if msg.Type == MessageError {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, msg.Error.Message))
				return
			}
		}
	}
}
