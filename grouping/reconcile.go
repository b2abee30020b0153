package grouping

import (
	"context"
	"fmt"

	"github.com/marmotkit/Gold/metrics"
	"github.com/marmotkit/Gold/models"
)

// reconcile заменяет хранилище авторитетным снимком, не теряя локальной работы:
//   - поле с отложенной (или отправленной) правкой сохраняет локальное значение;
//   - пока в раскладке есть несохранённые изменения, группы и порядок известных
//     участников остаются локальными, а новые участники добавляются в конец своей группы;
//   - правки участников, которых нет в снимке, сбрасываются.
//
// Вызывается под e.mu.
func (e *Engine) reconcile(snapshot []models.Participant, keepOrder bool) {
	edits := make(map[int][]editKey, len(e.pending))
	for key := range e.pending {
		edits[key.id] = append(edits[key.id], key)
	}

	keepLayout := e.unsaved
	nextOrder := make(map[string]int)
	if keepLayout {
		for _, p := range e.store.byID {
			code := p.Group()
			if p.DisplayOrder >= nextOrder[code] {
				nextOrder[code] = p.DisplayOrder + 1
			}
		}
	}

	seen := make(map[int]bool, len(snapshot))
	merged := make([]models.Participant, 0, len(snapshot))
	overlays := 0
	for _, in := range snapshot {
		p := in.Clone()
		seen[p.ID] = true

		if keepLayout {
			if local := e.store.ref(p.ID); local != nil {
				p.GroupCode = local.Clone().GroupCode
				p.DisplayOrder = local.DisplayOrder
			} else {
				code := p.Group()
				p.DisplayOrder = nextOrder[code]
				nextOrder[code]++
			}
		}

		for _, key := range edits[p.ID] {
			key.field.Apply(&p, e.pending[key].value)
			overlays++
		}
		merged = append(merged, p)
	}

	for id := range edits {
		if !seen[id] {
			e.cancelPending(id)
		}
	}
	if e.drag.phase == DragDragging && !seen[e.drag.participantID] {
		e.drag.End()
	}

	if keepLayout {
		metrics.ReconcileKeptLayoutCounter.Inc()
	}
	if overlays > 0 {
		metrics.ReconcileOverlayCounter.Add(float64(overlays))
	}

	e.store.Load(merged)
	e.index.Rebuild(keepOrder)
}

// refreshParticipant восстанавливает одного участника с бэкенда после неудачной
// записи. Место в группе остаётся за индексом; отложенные правки других полей
// по-прежнему главнее.
func (e *Engine) refreshParticipant(ctx context.Context, id int) error {
	snap, err := e.fetchFresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh participant %d: %w", id, err)
	}
	var fresh *models.Participant
	for i := range snap.participants {
		if snap.participants[i].ID == id {
			c := snap.participants[i].Clone()
			fresh = &c
			break
		}
	}
	if fresh == nil {
		return fmt.Errorf("refresh participant %d: %w", id, ErrParticipantNotFound)
	}

	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()
	local := e.store.ref(id)
	if local == nil {
		return nil
	}
	fresh.GroupCode = local.Clone().GroupCode
	fresh.DisplayOrder = local.DisplayOrder
	for key, pe := range e.pending {
		if key.id == id {
			key.field.Apply(fresh, pe.value)
		}
	}
	*local = *fresh
	e.emit(Event{Type: EventParticipantUpdated, ParticipantID: id})
	return nil
}
