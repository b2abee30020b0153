package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marmotkit/Gold/grouping"
	"github.com/marmotkit/Gold/metrics"
	"github.com/marmotkit/Gold/models"
	"github.com/marmotkit/Gold/realtime"
	"github.com/marmotkit/Gold/repositories"
	"github.com/marmotkit/Gold/storage"
)

// Broadcaster доставляет сообщение всем экранам комнаты.
type Broadcaster interface {
	BroadcastToRoom(room string, message realtime.Message)
}

// ExportResult - скачанная выгрузка и, если настроено архивирование, место
// хранения её копии.
type ExportResult struct {
	File    *models.ExportFile
	Archive *storage.UploadResult
}

// openTimeout ограничивает первую загрузку сессии. Загрузка общая для всех,
// кто открывает тот же турнир, поэтому не зависит ни от одного запроса.
const openTimeout = 30 * time.Second

type SessionService interface {
	// Open возвращает движок турнира, загружая его при первом обращении и
	// восстанавливая сохранённый черновик, если он есть.
	Open(ctx context.Context, tournamentID int) (*grouping.Engine, error)
	// Get возвращает уже открытый движок.
	Get(tournamentID int) (*grouping.Engine, error)
	View(ctx context.Context, tournamentID int) (grouping.View, error)
	Save(ctx context.Context, tournamentID int) error
	AutoGroup(ctx context.Context, tournamentID int) error
	Export(ctx context.Context, tournamentID int) (*ExportResult, error)
	// CloseSession закрывает движок турнира. Отложенные правки не отправляются.
	CloseSession(tournamentID int) error
	// SnapshotDrafts сохраняет раскладку каждой сессии с несохранёнными изменениями.
	SnapshotDrafts(ctx context.Context) (int, error)
	OpenSessions() []int
	CloseAll()
}

type SessionServiceConfig struct {
	Gateway  grouping.Gateway
	Drafts   repositories.DraftRepository // nil отключает черновики
	Uploader storage.FileUploader         // nil отключает архивирование выгрузок
	Hub      Broadcaster                  // nil отключает рассылку
	Engine   grouping.Options
	Logger   *slog.Logger
}

type session struct {
	engine      *grouping.Engine
	unsubscribe func()
}

type sessionService struct {
	gw       grouping.Gateway
	drafts   repositories.DraftRepository
	uploader storage.FileUploader
	hub      Broadcaster
	opts     grouping.Options
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[int]*session
	closed   bool
	opening  singleflight.Group
}

func NewSessionService(cfg SessionServiceConfig) SessionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := cfg.Engine
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &sessionService{
		gw:       cfg.Gateway,
		drafts:   cfg.Drafts,
		uploader: cfg.Uploader,
		hub:      cfg.Hub,
		opts:     opts,
		logger:   logger.With(slog.String("component", "session_service")),
		sessions: make(map[int]*session),
	}
}

func (s *sessionService) Open(ctx context.Context, tournamentID int) (*grouping.Engine, error) {
	if tournamentID <= 0 {
		return nil, ErrInvalidTournamentID
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	if sess, ok := s.sessions[tournamentID]; ok {
		s.mu.Unlock()
		return sess.engine, nil
	}
	s.mu.Unlock()

	v, err, _ := s.opening.Do(strconv.Itoa(tournamentID), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), openTimeout)
		defer cancel()
		return s.open(loadCtx, tournamentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*grouping.Engine), nil
}

func (s *sessionService) open(ctx context.Context, tournamentID int) (*grouping.Engine, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[tournamentID]; ok {
		s.mu.Unlock()
		return sess.engine, nil
	}
	s.mu.Unlock()

	engine := grouping.NewEngine(tournamentID, s.gw, s.opts)
	if err := engine.Load(ctx); err != nil {
		engine.Close()
		return nil, err
	}
	s.restoreDraft(ctx, engine)

	sess := &session{engine: engine}
	if s.hub != nil {
		room := realtime.RoomForTournament(tournamentID)
		sess.unsubscribe = engine.Subscribe(func(ev grouping.Event) {
			s.hub.BroadcastToRoom(room, realtime.Message{Type: string(ev.Type), Payload: ev})
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dispose(sess)
		return nil, ErrServiceClosed
	}
	s.sessions[tournamentID] = sess
	metrics.OpenSessionsGauge.Set(float64(len(s.sessions)))
	s.logger.Info("session opened", slog.Int("tournament_id", tournamentID))
	return engine, nil
}

// restoreDraft проигрывает сохранённый черновик на только что загруженном движке.
// Битый или отсутствующий черновик оставляет раскладку бэкенда.
func (s *sessionService) restoreDraft(ctx context.Context, engine *grouping.Engine) {
	if s.drafts == nil {
		return
	}
	tid := engine.TournamentID()
	draft, err := s.drafts.Get(ctx, tid)
	if err != nil {
		if !errors.Is(err, repositories.ErrDraftNotFound) {
			s.logger.Warn("draft lookup failed", slog.Int("tournament_id", tid), slog.Any("error", err))
		}
		return
	}
	if err := engine.ApplyLayout(draft.Layout); err != nil {
		s.logger.Warn("draft restore failed", slog.Int("tournament_id", tid), slog.Any("error", err))
		return
	}
	s.logger.Info("draft restored", slog.Int("tournament_id", tid), slog.Time("draft_updated_at", draft.UpdatedAt))
}

func (s *sessionService) Get(tournamentID int) (*grouping.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	sess, ok := s.sessions[tournamentID]
	if !ok {
		return nil, ErrSessionNotOpen
	}
	return sess.engine, nil
}

func (s *sessionService) View(ctx context.Context, tournamentID int) (grouping.View, error) {
	engine, err := s.Open(ctx, tournamentID)
	if err != nil {
		return grouping.View{}, err
	}
	return engine.View(), nil
}

// Save отправляет отложенные правки полей, затем раскладку. Неудачная запись
// поля не мешает раскладке; о ней сообщают события движка.
func (s *sessionService) Save(ctx context.Context, tournamentID int) error {
	engine, err := s.Get(tournamentID)
	if err != nil {
		return err
	}
	if err := engine.FlushPending(ctx); err != nil {
		s.logger.Warn("pending edits not written before save", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
	err = engine.SaveGroups(ctx)
	if !engine.HasUnsavedChanges() {
		s.discardDraft(ctx, tournamentID)
	}
	return err
}

func (s *sessionService) AutoGroup(ctx context.Context, tournamentID int) error {
	engine, err := s.Get(tournamentID)
	if err != nil {
		return err
	}
	if err := engine.AutoGroup(ctx); err != nil {
		return err
	}
	s.discardDraft(ctx, tournamentID)
	return nil
}

func (s *sessionService) discardDraft(ctx context.Context, tournamentID int) {
	if s.drafts == nil {
		return
	}
	if err := s.drafts.Delete(ctx, tournamentID); err != nil && !errors.Is(err, repositories.ErrDraftNotFound) {
		s.logger.Warn("draft delete failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
}

// Export скачивает выгрузку групп. Если настроен загрузчик, копия
// архивируется; ошибка архивирования пишется в лог, а скачивание всё равно успешно.
func (s *sessionService) Export(ctx context.Context, tournamentID int) (*ExportResult, error) {
	engine, err := s.Open(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	file, err := engine.Export(ctx)
	if err != nil {
		return nil, err
	}
	res := &ExportResult{File: file}
	if s.uploader == nil {
		return res, nil
	}
	archive, err := s.archive(ctx, tournamentID, file)
	if err != nil {
		s.logger.Warn("export archive failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return res, nil
	}
	res.Archive = archive
	return res, nil
}

func (s *sessionService) archive(ctx context.Context, tournamentID int, file *models.ExportFile) (*storage.UploadResult, error) {
	if s.uploader == nil {
		return nil, ErrArchiveDisabled
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := storage.ExportKey(tournamentID, file.Name)
	result, err := s.uploader.Upload(ctx, key, contentType, bytes.NewReader(file.Data))
	if err != nil {
		return nil, fmt.Errorf("archive export of tournament %d: %w", tournamentID, err)
	}
	s.logger.Info("export archived", slog.Int("tournament_id", tournamentID), slog.String("key", result.Key))
	return result, nil
}

func (s *sessionService) CloseSession(tournamentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tournamentID]
	if !ok {
		return ErrSessionNotOpen
	}
	delete(s.sessions, tournamentID)
	s.dispose(sess)
	metrics.OpenSessionsGauge.Set(float64(len(s.sessions)))
	s.logger.Info("session closed", slog.Int("tournament_id", tournamentID))
	return nil
}

func (s *sessionService) dispose(sess *session) {
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	sess.engine.Close()
}

func (s *sessionService) SnapshotDrafts(ctx context.Context) (int, error) {
	if s.drafts == nil {
		return 0, nil
	}
	s.mu.Lock()
	engines := make([]*grouping.Engine, 0, len(s.sessions))
	for _, sess := range s.sessions {
		engines = append(engines, sess.engine)
	}
	s.mu.Unlock()

	saved := 0
	var errs []error
	for _, engine := range engines {
		layout, unsaved := engine.UnsavedLayout()
		if !unsaved {
			continue
		}
		if err := s.drafts.Save(ctx, engine.TournamentID(), layout); err != nil {
			metrics.DraftSnapshotCounter.WithLabelValues("error").Inc()
			errs = append(errs, err)
			continue
		}
		metrics.DraftSnapshotCounter.WithLabelValues("ok").Inc()
		saved++
	}
	return saved, errors.Join(errs...)
}

func (s *sessionService) OpenSessions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// CloseAll закрывает все сессии и отклоняет новые.
func (s *sessionService) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sess := range s.sessions {
		s.dispose(sess)
		delete(s.sessions, id)
	}
	metrics.OpenSessionsGauge.Set(0)
	s.logger.Info("all sessions closed")
}
