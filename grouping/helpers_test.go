package grouping

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/marmotkit/Gold/models"
)

var errBackendDown = errors.New("backend down")

type fieldWrite struct {
	ID    int
	Field models.Field
	Value string
}

// fakeGateway отдаёт заданный состав и запоминает каждую запись.
type fakeGateway struct {
	mu           sync.Mutex
	participants []models.Participant
	afterAuto    []models.Participant

	fetchErr  error
	saveErr   error
	autoErr   error
	updateErr error
	deleteErr error

	// saveGate, если задан, держит SaveGroups до закрытия; в saveEntered
	// приходит сигнал, когда вызов заблокирован.
	saveGate    chan struct{}
	saveEntered chan struct{}

	// fetchGate, если задан, держит следующий вызов FetchParticipants после
	// копирования состава; в fetchEntered приходит сигнал в этот момент.
	// Держится только один вызов.
	fetchGate    chan struct{}
	fetchEntered chan struct{}

	fetches int
	saved   []models.GroupLayout
	writes  []fieldWrite
	deleted []int
	autos   int
}

func (g *fakeGateway) FetchParticipants(ctx context.Context, tournamentID int) ([]models.Participant, error) {
	g.mu.Lock()
	g.fetches++
	if g.fetchErr != nil {
		g.mu.Unlock()
		return nil, g.fetchErr
	}
	out := make([]models.Participant, len(g.participants))
	for i, p := range g.participants {
		out[i] = p.Clone()
	}
	gate, entered := g.fetchGate, g.fetchEntered
	g.fetchGate, g.fetchEntered = nil, nil
	g.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}
	return out, nil
}

// holdNextFetch заставляет следующую загрузку вернуть текущий состав только
// после вызова возвращённой функции release.
func (g *fakeGateway) holdNextFetch() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 1)
	g.set(func(g *fakeGateway) {
		g.fetchGate = gate
		g.fetchEntered = ch
	})
	return ch, func() { close(gate) }
}

func (g *fakeGateway) SaveGroups(ctx context.Context, tournamentID int, layout models.GroupLayout) error {
	g.mu.Lock()
	gate, entered := g.saveGate, g.saveEntered
	g.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	g.saved = append(g.saved, layout)
	placed := make(map[int]models.GroupAssignment)
	for _, grp := range layout.Groups {
		for _, id := range grp.ParticipantIDs {
			placed[id] = grp
		}
	}
	for i := range g.participants {
		p := &g.participants[i]
		grp, ok := placed[p.ID]
		if !ok {
			continue
		}
		p.GroupCode = nil
		if !models.IsUngrouped(grp.GroupCode) {
			code := grp.GroupCode
			p.GroupCode = &code
		}
		for pos, id := range grp.ParticipantIDs {
			if id == p.ID {
				p.DisplayOrder = pos
			}
		}
	}
	return nil
}

func (g *fakeGateway) savedLayouts() []models.GroupLayout {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.GroupLayout(nil), g.saved...)
}

func (g *fakeGateway) deletedIDs() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.deleted...)
}

func (g *fakeGateway) AutoGroup(ctx context.Context, tournamentID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autos++
	if g.autoErr != nil {
		return g.autoErr
	}
	if g.afterAuto != nil {
		g.participants = g.afterAuto
	}
	return nil
}

func (g *fakeGateway) UpdateField(ctx context.Context, tournamentID, participantID int, field models.Field, value string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = append(g.writes, fieldWrite{ID: participantID, Field: field, Value: value})
	if g.updateErr != nil {
		return "", g.updateErr
	}
	return value, nil
}

func (g *fakeGateway) DeleteParticipant(ctx context.Context, tournamentID, participantID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deleted = append(g.deleted, participantID)
	for i, p := range g.participants {
		if p.ID == participantID {
			g.participants = append(g.participants[:i:i], g.participants[i+1:]...)
			break
		}
	}
	return nil
}

func (g *fakeGateway) ExportGroups(ctx context.Context, tournamentID int) (*models.ExportFile, error) {
	return &models.ExportFile{Name: "groups.xlsx", ContentType: "application/octet-stream", Data: []byte("xlsx")}, nil
}

func (g *fakeGateway) setParticipants(ps []models.Participant) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.participants = ps
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *fakeGateway) writesSnapshot() []fieldWrite {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]fieldWrite(nil), g.writes...)
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

// eventLog собирает события движка для проверок.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) has(typ EventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func participant(id int, group string, order int) models.Participant {
	p := models.Participant{
		ID:                 id,
		TournamentID:       1,
		Name:               "player",
		RegistrationNumber: "R" + string(rune('A'+id%26)),
		Gender:             models.GenderMale,
		DisplayOrder:       order,
		CheckInStatus:      models.CheckInNotCheckedIn,
	}
	if group != "" {
		g := group
		p.GroupCode = &g
	}
	return p
}

func withHandicap(p models.Participant, h float64) models.Participant {
	p.Handicap = &h
	return p
}

func newTestIndex(ps ...models.Participant) (*Store, *Index) {
	store := NewStore()
	store.Load(ps)
	return store, NewIndex(store)
}

func members(t *testing.T, ix *Index, code string) []int {
	t.Helper()
	ids, err := ix.Members(code)
	require.NoError(t, err)
	return ids
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine загружает движок поверх gw с поддельными часами.
func newTestEngine(t *testing.T, gw *fakeGateway) (*Engine, *clockwork.FakeClock, *eventLog) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	e := NewEngine(1, gw, Options{DebounceWindow: DefaultDebounceWindow, Clock: clock, Logger: quietLogger()})
	log := &eventLog{}
	e.Subscribe(log.record)
	require.NoError(t, e.Load(context.Background()))
	t.Cleanup(e.Close)
	return e, clock, log
}
