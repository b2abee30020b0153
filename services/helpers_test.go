package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/marmotkit/Gold/grouping"
	"github.com/marmotkit/Gold/models"
	"github.com/marmotkit/Gold/realtime"
	"github.com/marmotkit/Gold/repositories"
	"github.com/marmotkit/Gold/storage"
)

var errUnavailable = errors.New("unavailable")

// stubGateway отдаёт по одному составу на турнир.
type stubGateway struct {
	mu       sync.Mutex
	rosters  map[int][]models.Participant
	fetches  int
	saves    int
	fetchErr error

	// fetchGate, если задан, держит каждую загрузку до закрытия или до конца
	// контекста вызывающего; в fetchEntered приходит сигнал на каждый вызов.
	fetchGate    chan struct{}
	fetchEntered chan struct{}
}

func newStubGateway() *stubGateway {
	return &stubGateway{rosters: map[int][]models.Participant{
		1: {player(1, "1", 0), player(2, "1", 1), player(3, "2", 0)},
		2: {player(10, "A", 0)},
	}}
}

func player(id int, group string, order int) models.Participant {
	p := models.Participant{ID: id, Name: "p", Gender: models.GenderMale, DisplayOrder: order, CheckInStatus: models.CheckInNotCheckedIn}
	if group != "" {
		g := group
		p.GroupCode = &g
	}
	return p
}

func (g *stubGateway) FetchParticipants(ctx context.Context, tournamentID int) ([]models.Participant, error) {
	g.mu.Lock()
	gate, entered := g.fetchGate, g.fetchEntered
	g.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	roster, ok := g.rosters[tournamentID]
	if !ok {
		return nil, errors.New("tournament not found")
	}
	out := make([]models.Participant, len(roster))
	for i, p := range roster {
		out[i] = p.Clone()
	}
	return out, nil
}

func (g *stubGateway) SaveGroups(ctx context.Context, tournamentID int, layout models.GroupLayout) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves++
	roster := g.rosters[tournamentID]
	for _, grp := range layout.Groups {
		for pos, id := range grp.ParticipantIDs {
			for i := range roster {
				if roster[i].ID != id {
					continue
				}
				models.FieldGroupCode.Apply(&roster[i], grp.GroupCode)
				roster[i].DisplayOrder = pos
			}
		}
	}
	return nil
}

func (g *stubGateway) AutoGroup(ctx context.Context, tournamentID int) error { return nil }

func (g *stubGateway) UpdateField(ctx context.Context, tournamentID, participantID int, field models.Field, value string) (string, error) {
	return value, nil
}

func (g *stubGateway) DeleteParticipant(ctx context.Context, tournamentID, participantID int) error {
	return nil
}

func (g *stubGateway) ExportGroups(ctx context.Context, tournamentID int) (*models.ExportFile, error) {
	return &models.ExportFile{Name: "groups.xlsx", Data: []byte("xlsx")}, nil
}

func (g *stubGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

// memoryDrafts - DraftRepository в памяти.
type memoryDrafts struct {
	mu      sync.Mutex
	drafts  map[int]models.GroupDraft
	saveErr error
	deletes int
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{drafts: make(map[int]models.GroupDraft)}
}

var _ repositories.DraftRepository = (*memoryDrafts)(nil)

func (m *memoryDrafts) Save(ctx context.Context, tournamentID int, layout models.GroupLayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.drafts[tournamentID] = models.GroupDraft{TournamentID: tournamentID, Layout: layout, UpdatedAt: time.Now()}
	return nil
}

func (m *memoryDrafts) Get(ctx context.Context, tournamentID int) (*models.GroupDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[tournamentID]
	if !ok {
		return nil, repositories.ErrDraftNotFound
	}
	return &d, nil
}

func (m *memoryDrafts) Delete(ctx context.Context, tournamentID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if _, ok := m.drafts[tournamentID]; !ok {
		return repositories.ErrDraftNotFound
	}
	delete(m.drafts, tournamentID)
	return nil
}

func (m *memoryDrafts) has(tournamentID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[tournamentID]
	return ok
}

// memoryUploader хранит загруженные объекты в map.
type memoryUploader struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

var _ storage.FileUploader = (*memoryUploader)(nil)

func (u *memoryUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	if u.uploadErr != nil {
		return nil, u.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = make(map[string][]byte)
	}
	u.objects[key] = data
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *memoryUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	return nil
}

func (u *memoryUploader) GetPublicURL(key string) string {
	return "https://files.example.com/" + key
}

// roomRecorder запоминает рассылки.
type roomRecorder struct {
	mu       sync.Mutex
	messages map[string][]realtime.Message
}

func (r *roomRecorder) BroadcastToRoom(room string, message realtime.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messages == nil {
		r.messages = make(map[string][]realtime.Message)
	}
	r.messages[room] = append(r.messages[room], message)
}

func (r *roomRecorder) types(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages[room] {
		out = append(out, m.Type)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(gw grouping.Gateway, drafts repositories.DraftRepository, uploader storage.FileUploader, hub Broadcaster) SessionService {
	return NewSessionService(SessionServiceConfig{
		Gateway:  gw,
		Drafts:   drafts,
		Uploader: uploader,
		Hub:      hub,
		Logger:   quietLogger(),
	})
}
