package grouping

import (
	"sort"

	"github.com/marmotkit/Gold/models"
)

// Store - основная таблица участников одного турнира в памяти.
// Не безопасна для параллельного доступа; доступ упорядочивает Engine.
type Store struct {
	byID map[int]*models.Participant
}

func NewStore() *Store {
	return &Store{byID: make(map[int]*models.Participant)}
}

// Load целиком заменяет таблицу.
func (s *Store) Load(participants []models.Participant) {
	s.byID = make(map[int]*models.Participant, len(participants))
	for _, p := range participants {
		c := p.Clone()
		s.byID[c.ID] = &c
	}
}

// Get возвращает копию участника.
func (s *Store) Get(id int) (models.Participant, bool) {
	p, ok := s.byID[id]
	if !ok {
		return models.Participant{}, false
	}
	return p.Clone(), true
}

// Update применяет patch к сохранённой записи. Поля, которые patch не трогает,
// сохраняют значение.
func (s *Store) Update(id int, patch func(p *models.Participant)) error {
	p, ok := s.byID[id]
	if !ok {
		return ErrParticipantNotFound
	}
	patch(p)
	p.ID = id
	return nil
}

// CanRemove возвращает причину, по которой участника нельзя удалить, если она есть.
func (s *Store) CanRemove(id int) error {
	p, ok := s.byID[id]
	if !ok {
		return ErrParticipantNotFound
	}
	if p.IsCheckedIn() {
		return validationErrorf(ErrImmutableParticipant, "participant %d (%s)", id, p.Name)
	}
	return nil
}

// Remove удаляет участника, если он не отметился.
func (s *Store) Remove(id int) error {
	if err := s.CanRemove(id); err != nil {
		return err
	}
	delete(s.byID, id)
	return nil
}

func (s *Store) Has(id int) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *Store) Len() int {
	return len(s.byID)
}

// All возвращает копии всех участников по возрастанию id.
func (s *Store) All() []models.Participant {
	out := make([]models.Participant, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ref возвращает живую запись. Используется только индексом.
func (s *Store) ref(id int) *models.Participant {
	return s.byID[id]
}
