package grouping

import "fmt"

// DragPhase - состояние контроллера перетаскивания.
type DragPhase string

const (
	DragIdle     DragPhase = "idle"
	DragDragging DragPhase = "dragging"
)

// EndOfGroup в качестве индекса сброса добавляет участника в конец группы.
const EndOfGroup = -1

// DropTarget - то, что интерфейс определил под указателем при сбросе. Пустой
// GroupCode означает последнюю группу под курсором; Index EndOfGroup (или любое
// отрицательное значение) значит, что позицию определить не удалось.
type DropTarget struct {
	GroupCode string `json:"group_code"`
	Index     int    `json:"index"`
}

// DragState - снимок контроллера для интерфейса.
type DragState struct {
	Phase         DragPhase `json:"phase"`
	ParticipantID int       `json:"participant_id,omitempty"`
	HoveredGroup  string    `json:"hovered_group,omitempty"`
}

// DragDrop превращает жесты перетаскивания в переносы в индексе. Группа под
// курсором нужна только для подсветки; до Drop ничего не фиксируется.
type DragDrop struct {
	phase         DragPhase
	participantID int
	hoveredGroup  string
}

func NewDragDrop() *DragDrop {
	return &DragDrop{phase: DragIdle}
}

func (d *DragDrop) State() DragState {
	return DragState{Phase: d.phase, ParticipantID: d.participantID, HoveredGroup: d.hoveredGroup}
}

// Start начинает перетаскивание id. Текущее перетаскивание бросается.
func (d *DragDrop) Start(ix *Index, id int) error {
	if _, ok := ix.GroupOf(id); !ok {
		d.End()
		return ErrParticipantNotFound
	}
	d.phase = DragDragging
	d.participantID = id
	d.hoveredGroup = ""
	return nil
}

// Over запоминает группу под указателем.
func (d *DragDrop) Over(code string) {
	if d.phase != DragDragging {
		return
	}
	d.hoveredGroup = code
}

// Drop завершает перетаскивание и сообщает, изменился ли индекс. После него
// контроллер в любом случае свободен.
func (d *DragDrop) Drop(ix *Index, target DropTarget) (bool, error) {
	defer d.End()
	if d.phase != DragDragging {
		return false, nil
	}

	code := target.GroupCode
	if code == "" {
		code = d.hoveredGroup
	}
	if code == "" || !ix.Has(code) {
		return false, nil
	}

	id := d.participantID
	current, ok := ix.GroupOf(id)
	if !ok {
		return false, ErrParticipantNotFound
	}
	code = normalizeCode(code)

	idx := target.Index
	if idx < 0 {
		members, _ := ix.Members(code)
		idx = len(members)
		if code == current {
			// перестановка внутри группы без позиции: в конец
			idx = len(members) - 1
		}
	}
	return ix.MoveParticipant(id, code, idx)
}

// End возвращает контроллер в свободное состояние. Для отмены и конца перетаскивания.
func (d *DragDrop) End() {
	d.phase = DragIdle
	d.participantID = 0
	d.hoveredGroup = ""
}

// DragStart начинает перетаскивание участника id.
func (e *Engine) DragStart(id int) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()
	if err := e.drag.Start(e.index, id); err != nil {
		return fmt.Errorf("%w: %d", err, id)
	}
	e.emit(Event{Type: EventDragUpdated, ParticipantID: id})
	return nil
}

// DragOver обновляет группу под курсором. Раскладку не меняет.
func (e *Engine) DragOver(code string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()
	if e.drag.phase != DragDragging {
		return nil
	}
	e.drag.Over(code)
	e.emit(Event{Type: EventDragUpdated, ParticipantID: e.drag.participantID, Value: code})
	return nil
}

// Drop завершает перетаскивание на target. Сброс без подходящей группы ничего не делает.
func (e *Engine) Drop(target DropTarget) (bool, error) {
	if err := e.lock(); err != nil {
		return false, err
	}
	defer e.unlock()
	id := e.drag.participantID
	changed, err := e.drag.Drop(e.index, target)
	if err != nil {
		return false, err
	}
	if changed {
		e.markDirty()
		e.emit(Event{Type: EventGroupsUpdated, ParticipantID: id})
	}
	e.emit(Event{Type: EventDragUpdated})
	return changed, nil
}

// DragEnd отменяет текущее перетаскивание.
func (e *Engine) DragEnd() {
	e.mu.Lock()
	if e.closed || e.drag.phase == DragIdle {
		e.mu.Unlock()
		return
	}
	e.drag.End()
	e.emit(Event{Type: EventDragUpdated})
	e.unlock()
}

func (e *Engine) DragState() DragState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drag.State()
}
