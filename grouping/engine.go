// Package grouping содержит движок распределения участников турнира по группам:
// хранилище участников, индекс групп поверх него, контроллер перетаскивания,
// отложенную запись полей и слияние снимков сервера с локальными правками.
//
// Все изменения одного движка идут под одним мьютексом. Вызовы шлюза и таймеры
// работают вне его и по завершении заходят через тот же замок, поэтому две
// последовательности чтение-изменение-запись не перемешиваются.
package grouping

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/marmotkit/Gold/metrics"
	"github.com/marmotkit/Gold/models"
)

// DefaultDebounceWindow - пауза ввода, после которой правка поля уходит на бэкенд.
const DefaultDebounceWindow = 500 * time.Millisecond

// Gateway - то, как движок видит бэкенд турнира.
type Gateway interface {
	FetchParticipants(ctx context.Context, tournamentID int) ([]models.Participant, error)
	SaveGroups(ctx context.Context, tournamentID int, layout models.GroupLayout) error
	AutoGroup(ctx context.Context, tournamentID int) error
	// UpdateField записывает одно поле и возвращает сохранённое бэкендом значение.
	UpdateField(ctx context.Context, tournamentID, participantID int, field models.Field, value string) (string, error)
	DeleteParticipant(ctx context.Context, tournamentID, participantID int) error
	ExportGroups(ctx context.Context, tournamentID int) (*models.ExportFile, error)
}

type Options struct {
	DebounceWindow time.Duration
	Clock          clockwork.Clock
	Logger         *slog.Logger
}

type operation string

const (
	opSave      operation = "save"
	opAutoGroup operation = "auto_group"
)

type Engine struct {
	tournamentID int
	gw           Gateway
	clock        clockwork.Clock
	window       time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	store    *Store
	index    *Index
	drag     *DragDrop
	pending  map[editKey]*pendingEdit
	editSeq  uint64
	unsaved  bool
	revision uint64
	inflight map[operation]bool
	closed   bool
	// epoch растёт после каждого успешного сохранения или автогруппировки;
	// снимки, запрошенные в более старой эпохе, отбрасываются.
	epoch uint64

	subs       map[int]Subscriber
	nextSubID  int
	queue      []Event
	dispatchMu sync.Mutex

	fetches singleflight.Group
}

// NewEngine создает пустой движок; заполняется вызовом Load.
func NewEngine(tournamentID int, gw Gateway, opts Options) *Engine {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	store := NewStore()
	return &Engine{
		tournamentID: tournamentID,
		gw:           gw,
		clock:        opts.Clock,
		window:       opts.DebounceWindow,
		logger:       opts.Logger.With(slog.Int("tournament_id", tournamentID)),
		store:        store,
		index:        NewIndex(store),
		drag:         NewDragDrop(),
		pending:      make(map[editKey]*pendingEdit),
		inflight:     make(map[operation]bool),
		subs:         make(map[int]Subscriber),
	}
}

func (e *Engine) TournamentID() int {
	return e.tournamentID
}

// lock захватывает движок и возвращает ошибку, если он закрыт.
func (e *Engine) lock() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	return nil
}

// markDirty отмечает локальное изменение раскладки, ещё не сохранённое.
func (e *Engine) markDirty() {
	e.unsaved = true
	e.revision++
}

// HasUnsavedChanges сообщает, отличается ли раскладка от последнего сохранения.
func (e *Engine) HasUnsavedChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unsaved
}

func (e *Engine) Participant(id int) (models.Participant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

func (e *Engine) Participants() []models.Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.All()
}

func (e *Engine) Groups() []Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Groups()
}

func (e *Engine) Layout() models.GroupLayout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Layout()
}

// UnsavedLayout атомарно возвращает текущую раскладку и флаг несохранённых изменений.
func (e *Engine) UnsavedLayout() (models.GroupLayout, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Layout(), e.unsaved
}

// Load загружает состав и целиком заменяет им хранилище.
func (e *Engine) Load(ctx context.Context) error {
	snap, err := e.fetch(ctx)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	if err := e.lock(); err != nil {
		return err
	}
	e.reconcile(snap.participants, false)
	e.emit(Event{Type: EventSnapshotLoaded})
	e.unlock()
	e.logger.Info("participants loaded", slog.Int("count", len(snap.participants)))
	return nil
}

// Reload загружает снимок и сливает его с локальным состоянием. Вызывается,
// когда окно оператора снова получает фокус. Параллельные вызовы делят один запрос.
func (e *Engine) Reload(ctx context.Context) error {
	return e.reload(ctx, false)
}

// reload с fresh не присоединяется к запросу, начатому раньше; используется
// сразу после изменения на сервере.
func (e *Engine) reload(ctx context.Context, fresh bool) error {
	fetch := e.fetch
	if fresh {
		fetch = e.fetchFresh
	}
	snap, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("reload participants: %w", err)
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()
	if !e.current(snap) {
		return nil
	}
	e.reconcile(snap.participants, true)
	e.emit(Event{Type: EventSnapshotLoaded})
	return nil
}

const fetchKey = "participants"

// snapshot - состав вместе с эпохой, в которой начался его запрос.
type snapshot struct {
	participants []models.Participant
	epoch        uint64
}

func (e *Engine) fetch(ctx context.Context) (snapshot, error) {
	v, err, _ := e.fetches.Do(fetchKey, func() (interface{}, error) {
		e.mu.Lock()
		epoch := e.epoch
		e.mu.Unlock()
		participants, err := e.gw.FetchParticipants(ctx, e.tournamentID)
		return snapshot{participants: participants, epoch: epoch}, err
	})
	if err != nil {
		return snapshot{}, err
	}
	return v.(snapshot), nil
}

// fetchFresh начинает новый запрос, даже если другой уже идёт.
func (e *Engine) fetchFresh(ctx context.Context) (snapshot, error) {
	e.fetches.Forget(fetchKey)
	return e.fetch(ctx)
}

// current сообщает, запрошен ли snap после последнего сохранения или автогруппировки.
// Вызывается под e.mu.
func (e *Engine) current(snap snapshot) bool {
	if snap.epoch == e.epoch {
		return true
	}
	metrics.StaleSnapshotCounter.Inc()
	e.logger.Debug("stale snapshot dropped",
		slog.Uint64("snapshot_epoch", snap.epoch),
		slog.Uint64("epoch", e.epoch),
	)
	return false
}

// MoveParticipant переносит id на позицию targetIndex группы target. Только локально.
func (e *Engine) MoveParticipant(id int, target string, targetIndex int) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()
	changed, err := e.index.MoveParticipant(id, target, targetIndex)
	if err != nil {
		return err
	}
	if changed {
		e.markDirty()
		e.emit(Event{Type: EventGroupsUpdated, ParticipantID: id})
	}
	return nil
}

func (e *Engine) AddGroup(code string) error {
	return e.mutateIndex(func(ix *Index) error { return ix.AddGroup(code) })
}

func (e *Engine) DeleteGroup(code string) error {
	return e.mutateIndex(func(ix *Index) error { return ix.DeleteGroup(code) })
}

func (e *Engine) SortGroupByHandicap(code string) error {
	return e.mutateIndex(func(ix *Index) error { return ix.SortGroupByHandicap(code) })
}

func (e *Engine) ReorderGroups(codeA, codeB string) error {
	return e.mutateIndex(func(ix *Index) error { return ix.ReorderGroups(codeA, codeB) })
}

func (e *Engine) mutateIndex(fn func(ix *Index) error) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()
	if err := fn(e.index); err != nil {
		return err
	}
	e.markDirty()
	e.emit(Event{Type: EventGroupsUpdated})
	return nil
}

// ApplyLayout проигрывает сохранённую раскладку на индексе: недостающие группы
// создаются, известные участники встают на свои места, порядок групп
// восстанавливается. Участники, которых нет в раскладке, остаются в своих группах.
func (e *Engine) ApplyLayout(layout models.GroupLayout) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()

	changed := false
	for _, g := range layout.Groups {
		if !e.index.Has(g.GroupCode) {
			if err := e.index.AddGroup(g.GroupCode); err != nil {
				return fmt.Errorf("restore group %q: %w", g.GroupCode, err)
			}
			changed = true
		}
		pos := 0
		for _, id := range g.ParticipantIDs {
			if !e.store.Has(id) {
				continue
			}
			moved, err := e.index.MoveParticipant(id, g.GroupCode, pos)
			if err != nil {
				return fmt.Errorf("restore participant %d: %w", id, err)
			}
			changed = changed || moved
			pos++
		}
	}
	for i, code := range layout.GroupOrder {
		codes := e.index.Codes()
		code = normalizeCode(code)
		if i >= len(codes)-1 || models.IsUngrouped(code) || !e.index.Has(code) || codes[i] == code {
			continue
		}
		if err := e.index.ReorderGroups(codes[i], code); err != nil {
			return fmt.Errorf("restore group order: %w", err)
		}
		changed = true
	}

	if changed {
		e.markDirty()
		e.emit(Event{Type: EventGroupsUpdated})
	}
	return nil
}

// SaveGroups отправляет всю раскладку. При успехе флаг несохранённых изменений
// сбрасывается, если раскладка не менялась во время запроса, и хранилище
// перезагружается. При ошибке локально ничего не меняется.
func (e *Engine) SaveGroups(ctx context.Context) error {
	if err := e.lock(); err != nil {
		return err
	}
	if e.inflight[opSave] {
		e.mu.Unlock()
		return ErrOperationInFlight
	}
	e.inflight[opSave] = true
	layout := e.index.Layout()
	rev := e.revision
	e.mu.Unlock()
	defer e.finish(opSave)

	if err := e.gw.SaveGroups(ctx, e.tournamentID, layout); err != nil {
		e.logger.Warn("save groups failed", slog.Any("error", err))
		e.report(Event{Type: EventSaveFailed, Err: err})
		return fmt.Errorf("save groups: %w", err)
	}

	if err := e.lock(); err != nil {
		return err
	}
	if e.revision == rev {
		e.unsaved = false
	}
	e.epoch++
	e.emit(Event{Type: EventGroupsSaved})
	e.unlock()
	e.logger.Info("groups saved", slog.Int("groups", len(layout.Groups)))

	if err := e.reload(ctx, true); err != nil {
		return fmt.Errorf("groups saved but reload failed: %w", err)
	}
	return nil
}

// AutoGroup просит бэкенд распределить группы и принимает результат как есть.
// Ошибка на любом шаге оставляет хранилище прежним.
func (e *Engine) AutoGroup(ctx context.Context) error {
	if err := e.lock(); err != nil {
		return err
	}
	if e.inflight[opAutoGroup] {
		e.mu.Unlock()
		return ErrOperationInFlight
	}
	e.inflight[opAutoGroup] = true
	e.mu.Unlock()
	defer e.finish(opAutoGroup)

	if err := e.gw.AutoGroup(ctx, e.tournamentID); err != nil {
		e.logger.Warn("auto-group failed", slog.Any("error", err))
		e.report(Event{Type: EventAutoGroupFailed, Err: err})
		return fmt.Errorf("auto-group: %w", err)
	}
	if err := e.lock(); err != nil {
		return err
	}
	e.epoch++
	e.unlock()

	snap, err := e.fetchFresh(ctx)
	if err != nil {
		e.report(Event{Type: EventAutoGroupFailed, Err: err})
		return fmt.Errorf("auto-group: reload: %w", err)
	}

	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()
	if !e.current(snap) {
		// более позднее сохранение уже заменило раскладку на сервере и перезагрузит её само
		return nil
	}
	e.unsaved = false
	e.revision++
	e.reconcile(snap.participants, false)
	e.emit(Event{Type: EventAutoGrouped})
	e.logger.Info("auto-group applied", slog.Int("participants", len(snap.participants)))
	return nil
}

// DeleteParticipant удаляет участника на бэкенде, затем локально.
// Отметившиеся участники отклоняются до отправки запроса.
func (e *Engine) DeleteParticipant(ctx context.Context, id int) error {
	if err := e.lock(); err != nil {
		return err
	}
	if err := e.store.CanRemove(id); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("delete participant %d: %w", id, err)
	}
	e.mu.Unlock()

	if err := e.gw.DeleteParticipant(ctx, e.tournamentID, id); err != nil {
		return fmt.Errorf("delete participant %d: %w", id, err)
	}

	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()
	if !e.store.Has(id) {
		return nil
	}
	if err := e.store.Remove(id); err != nil {
		// отметился, пока шёл запрос; следующая перезагрузка его уберёт
		e.logger.Warn("participant removed on backend only", slog.Int("participant_id", id), slog.Any("error", err))
		return err
	}
	e.index.remove(id)
	e.cancelPending(id)
	if e.drag.participantID == id {
		e.drag.End()
	}
	e.emit(Event{Type: EventParticipantRemoved, ParticipantID: id})
	return nil
}

// Export скачивает выгрузку групп с бэкенда. Состояние не трогает.
func (e *Engine) Export(ctx context.Context) (*models.ExportFile, error) {
	file, err := e.gw.ExportGroups(ctx, e.tournamentID)
	if err != nil {
		return nil, fmt.Errorf("export groups: %w", err)
	}
	return file, nil
}

// Close отменяет все отложенные правки без записи. Уже применённые локально
// правки остаются. Дальнейшие операции движок отклоняет.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	dropped := 0
	for key, pe := range e.pending {
		if pe.timer != nil {
			pe.timer.Stop()
			dropped++
		}
		delete(e.pending, key)
	}
	e.drag.End()
	e.queue = nil
	if dropped > 0 {
		e.logger.Info("engine closed with unsent edits", slog.Int("dropped", dropped))
	}
}

func (e *Engine) finish(op operation) {
	e.mu.Lock()
	delete(e.inflight, op)
	e.mu.Unlock()
}

// report отправляет одно событие вне замка.
func (e *Engine) report(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.emit(ev)
	e.unlock()
}
