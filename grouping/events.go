package grouping

import "github.com/marmotkit/Gold/models"

// EventType - вид изменения, о котором движок сообщает подписчикам.
type EventType string

const (
	EventSnapshotLoaded     EventType = "SNAPSHOT_LOADED"
	EventParticipantUpdated EventType = "PARTICIPANT_UPDATED"
	EventParticipantRemoved EventType = "PARTICIPANT_REMOVED"
	EventGroupsUpdated      EventType = "GROUPS_UPDATED"
	EventDragUpdated        EventType = "DRAG_UPDATED"
	EventGroupsSaved        EventType = "GROUPS_SAVED"
	EventSaveFailed         EventType = "SAVE_FAILED"
	EventAutoGrouped        EventType = "AUTO_GROUPED"
	EventAutoGroupFailed    EventType = "AUTO_GROUP_FAILED"
	EventFieldFlushed       EventType = "FIELD_FLUSHED"
	EventFieldFlushFailed   EventType = "FIELD_FLUSH_FAILED"
)

// Event описывает одно изменение. Err заполнен для типов *_FAILED.
type Event struct {
	Type              EventType    `json:"type"`
	TournamentID      int          `json:"tournament_id"`
	ParticipantID     int          `json:"participant_id,omitempty"`
	Field             models.Field `json:"field,omitempty"`
	Value             string       `json:"value,omitempty"`
	HasUnsavedChanges bool         `json:"has_unsaved_changes"`
	Err               error        `json:"-"`
	Error             string       `json:"error,omitempty"`
}

// Subscriber получает события движка в порядке изменений. Вызывается вне замка
// движка, но не должен синхронно обращаться к тому же движку.
type Subscriber func(Event)

// Subscribe регистрирует fn и возвращает функцию отписки.
func (e *Engine) Subscribe(fn Subscriber) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// emit ставит событие в очередь; вызывается под e.mu.
func (e *Engine) emit(ev Event) {
	ev.TournamentID = e.tournamentID
	ev.HasUnsavedChanges = e.unsaved
	if ev.Err != nil {
		ev.Error = ev.Err.Error()
	}
	e.queue = append(e.queue, ev)
}

// unlock отпускает e.mu и доставляет события из очереди. Замок доставки
// берётся до освобождения e.mu, поэтому порядок доставки совпадает с порядком изменений.
func (e *Engine) unlock() {
	events := e.queue
	e.queue = nil
	if len(events) == 0 || len(e.subs) == 0 {
		e.mu.Unlock()
		return
	}
	subs := make([]Subscriber, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.dispatchMu.Lock()
	e.mu.Unlock()
	defer e.dispatchMu.Unlock()
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
