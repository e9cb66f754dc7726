package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event type 상수
const (
	TypeVisualProcessing    = "visual_processing"
	TypeVisualCompleted     = "visual_completed"
	TypeVisualFailed        = "visual_failed"
	TypeGenerationCompleted = "generation_completed"
)

// Event - 생성 진행 이벤트 (SSE/WebSocket 공통 페이로드).
// visual_* 이벤트는 VisualIndex, generation_completed는 CompletedCount/TotalCount를 채운다.
type Event struct {
	Type           string `json:"type"`
	GenerationID   string `json:"generationId"`
	UserID         string `json:"userId"`
	VisualType     string `json:"visualType,omitempty"`
	VisualIndex    *int   `json:"visualIndex,omitempty"`
	Status         string `json:"status,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	Error          string `json:"error,omitempty"`
	Progress       int    `json:"progress"`
	CompletedCount *int   `json:"completedCount,omitempty"`
	TotalCount     *int   `json:"totalCount,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Int - optional 숫자 필드용 포인터 헬퍼
func Int(v int) *int {
	return &v
}

// NewEvent - 타임스탬프가 채워진 이벤트 생성
func NewEvent(eventType, generationID, userID string) Event {
	return Event{
		Type:         eventType,
		GenerationID: generationID,
		UserID:       userID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}

// Subscriber - 구독자 1개 (채널이 가득 차면 이벤트는 버려짐)
type Subscriber struct {
	ID      string
	Channel chan Event
}

// Hub - (generationId, userId) 쌍으로 구독자를 관리하는 브로드캐스트 허브.
// 전송은 논블로킹, 재전송 버퍼 없음 (늦게 붙은 구독자는 progress 조회로 따라잡기).
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*Subscriber
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[string]*Subscriber),
	}
}

func key(generationID, userID string) string {
	return generationID + ":" + userID
}

// Subscribe - 구독 등록. 반환된 Subscriber.Channel에서 이벤트 수신.
func (h *Hub) Subscribe(generationID, userID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := key(generationID, userID)
	if h.subscribers[k] == nil {
		h.subscribers[k] = make(map[string]*Subscriber)
	}

	sub := &Subscriber{
		ID:      uuid.NewString(),
		Channel: make(chan Event, 256),
	}
	h.subscribers[k][sub.ID] = sub

	log.Printf("📡 Subscriber added: generation=%s user=%s (total: %d)", generationID, userID, len(h.subscribers[k]))
	return sub
}

// Unsubscribe - 구독 해제 및 채널 닫기
func (h *Hub) Unsubscribe(generationID, userID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := key(generationID, userID)
	subs := h.subscribers[k]
	if subs == nil {
		return
	}

	if _, ok := subs[sub.ID]; !ok {
		return
	}

	delete(subs, sub.ID)
	close(sub.Channel)
	if len(subs) == 0 {
		delete(h.subscribers, k)
	}

	log.Printf("📡 Subscriber removed: generation=%s user=%s", generationID, userID)
}

// Publish - 해당 (generation, user) 구독자 전체에 팬아웃.
// 채널이 가득 찬 느린 구독자는 건너뛴다 (at-most-once).
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subscribers[key(event.GenerationID, event.UserID)]
	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		select {
		case sub.Channel <- event:
		default:
			log.Printf("⚠️ Subscriber %s buffer full, dropping event %s", sub.ID, event.Type)
		}
	}
}

// SubscriberCount - 테스트/모니터링용
func (h *Hub) SubscriberCount(generationID, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[key(generationID, userID)])
}
