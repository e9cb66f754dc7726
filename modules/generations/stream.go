package generations

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"modeshoot-server/modules/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS는 프록시 레벨에서 처리
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// stream - SSE로 generation 진행 이벤트 전송
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	generationID := mux.Vars(r)["id"]

	// 구독 전 소유자 검증
	if err := h.service.VerifyOwnership(r.Context(), generationID, uid); err != nil {
		apiError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		apiError(w, fmt.Errorf("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.service.hub.Subscribe(generationID, uid)
	defer h.service.hub.Unsubscribe(generationID, uid, sub)

	log.Printf("📡 SSE stream opened: generation=%s user=%s", generationID, uid)

	heartbeat := time.NewTicker(pingPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("📡 SSE stream closed: generation=%s", generationID)
			return

		case event, open := <-sub.Channel:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// websocket - WebSocket으로 generation 진행 이벤트 전송.
// ?generationId=... 쿼리로 구독 대상 지정.
func (h *Handler) websocket(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	generationID := r.URL.Query().Get("generationId")

	if uid == "" || generationID == "" {
		http.Error(w, "generationId and user identity required", http.StatusBadRequest)
		return
	}

	if err := h.service.VerifyOwnership(r.Context(), generationID, uid); err != nil {
		apiError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	sub := h.service.hub.Subscribe(generationID, uid)

	log.Printf("🔌 WebSocket connected: generation=%s user=%s", generationID, uid)
	go h.writePump(conn, generationID, uid, sub)
	go h.readPump(conn)
}

// writePump - Hub 이벤트를 WebSocket으로 전달, 주기적 ping 전송
func (h *Handler) writePump(conn *websocket.Conn, generationID, uid string, sub *events.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.service.hub.Unsubscribe(generationID, uid, sub)
		conn.Close()
		log.Printf("🔌 WebSocket disconnected: generation=%s user=%s", generationID, uid)
	}()

	for {
		select {
		case event, open := <-sub.Channel:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("⚠️ WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump - 클라이언트 종료 감지용 (수신 메시지는 버림)
func (h *Handler) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
	}
}
