package grouping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/marmotkit/Gold/metrics"
	"github.com/marmotkit/Gold/models"
)

type editKey struct {
	id    int
	field models.Field
}

// pendingEdit - последнее неподтверждённое значение пары (участник, поле).
// Пока идёт таймер, значение ждёт паузы ввода; после отправки запись остаётся
// в полёте до ответа бэкенда, так что пришедшая в это время перезагрузка всё
// ещё видит локальное значение.
type pendingEdit struct {
	value    string
	seq      uint64
	timer    clockwork.Timer
	inflight bool
}

// Edit сразу применяет value локально и планирует запись после паузы ввода.
// Следующая правка того же поля заменяет эту и перезапускает паузу;
// отправляется только последнее значение серии.
func (e *Engine) Edit(id int, field models.Field, value string) error {
	if err := checkEditable(field, value); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()

	if err := e.store.Update(id, func(p *models.Participant) { field.Apply(p, value) }); err != nil {
		return fmt.Errorf("%w: %d", err, id)
	}
	key := editKey{id: id, field: field}
	seq := e.replacePending(key, value)
	e.pending[key].timer = e.clock.AfterFunc(e.window, func() { e.flush(key, seq) })
	e.emit(Event{Type: EventParticipantUpdated, ParticipantID: id, Field: field, Value: value})
	return nil
}

// Commit применяет value и сразу записывает его, возвращая ответ бэкенда.
// Используется для переключателей вроде пола и статуса отметки.
func (e *Engine) Commit(ctx context.Context, id int, field models.Field, value string) error {
	if err := checkEditable(field, value); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	if err := e.store.Update(id, func(p *models.Participant) { field.Apply(p, value) }); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", err, id)
	}
	key := editKey{id: id, field: field}
	seq := e.replacePending(key, value)
	e.pending[key].inflight = true
	e.emit(Event{Type: EventParticipantUpdated, ParticipantID: id, Field: field, Value: value})
	e.unlock()

	return e.write(ctx, key, seq, value)
}

// FlushPending немедленно отправляет все правки, ещё ждущие паузы ввода.
func (e *Engine) FlushPending(ctx context.Context) error {
	if err := e.lock(); err != nil {
		return err
	}
	type job struct {
		key   editKey
		seq   uint64
		value string
	}
	var jobs []job
	for key, pe := range e.pending {
		if pe.inflight {
			continue
		}
		pe.timer.Stop()
		pe.timer = nil
		pe.inflight = true
		jobs = append(jobs, job{key: key, seq: pe.seq, value: pe.value})
	}
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error { return e.write(gctx, j.key, j.seq, j.value) })
	}
	return g.Wait()
}

// PendingCount возвращает число неподтверждённых правок полей.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func checkEditable(field models.Field, value string) error {
	if field == models.FieldGroupCode {
		return validationErrorf(ErrInvalidFieldValue, "group membership changes go through the group index")
	}
	if err := field.Validate(value); err != nil {
		return &ValidationError{Kind: ErrInvalidFieldValue, Msg: err.Error()}
	}
	return nil
}

// replacePending останавливает предыдущую правку key, если она есть, и ставит
// новую запись. Вызывается под e.mu.
func (e *Engine) replacePending(key editKey, value string) uint64 {
	if prev, ok := e.pending[key]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	e.editSeq++
	e.pending[key] = &pendingEdit{value: value, seq: e.editSeq}
	return e.editSeq
}

// cancelPending сбрасывает все правки участника id. Вызывается под e.mu.
func (e *Engine) cancelPending(id int) {
	for key, pe := range e.pending {
		if key.id != id {
			continue
		}
		if pe.timer != nil {
			pe.timer.Stop()
		}
		delete(e.pending, key)
	}
}

// flush срабатывает, когда закончилась пауза ввода для правки.
func (e *Engine) flush(key editKey, seq uint64) {
	e.mu.Lock()
	pe, ok := e.pending[key]
	if e.closed || !ok || pe.seq != seq || pe.inflight {
		e.mu.Unlock()
		return
	}
	pe.timer = nil
	pe.inflight = true
	value := pe.value
	e.mu.Unlock()

	// об ошибках сообщает EventFieldFlushFailed
	_ = e.write(context.Background(), key, seq, value)
}

// write отправляет одно поле на бэкенд и закрывает отложенную запись.
// Возвращённое значение применяется, только если более новой правки поля нет.
// При ошибке участник перечитывается с бэкенда.
func (e *Engine) write(ctx context.Context, key editKey, seq uint64, value string) error {
	echo, err := e.gw.UpdateField(ctx, e.tournamentID, key.id, key.field, value)

	e.mu.Lock()
	if cur, ok := e.pending[key]; ok && cur.seq == seq {
		delete(e.pending, key)
	}
	if e.closed {
		e.mu.Unlock()
		return err
	}
	if err != nil {
		metrics.FieldFlushCounter.WithLabelValues(string(key.field), "error").Inc()
		e.logger.Warn("field write failed",
			slog.Int("participant_id", key.id),
			slog.String("field", string(key.field)),
			slog.Any("error", err),
		)
		e.emit(Event{Type: EventFieldFlushFailed, ParticipantID: key.id, Field: key.field, Value: value, Err: err})
		e.unlock()

		if rerr := e.refreshParticipant(ctx, key.id); rerr != nil {
			e.logger.Error("refresh after failed write", slog.Int("participant_id", key.id), slog.Any("error", rerr))
		}
		return fmt.Errorf("update %s of participant %d: %w", key.field, key.id, err)
	}

	metrics.FieldFlushCounter.WithLabelValues(string(key.field), "ok").Inc()
	if _, newer := e.pending[key]; !newer {
		_ = e.store.Update(key.id, func(p *models.Participant) { key.field.Apply(p, echo) })
	}
	e.emit(Event{Type: EventFieldFlushed, ParticipantID: key.id, Field: key.field, Value: echo})
	e.unlock()
	e.logger.Debug("field written", slog.Int("participant_id", key.id), slog.String("field", string(key.field)))
	return nil
}
