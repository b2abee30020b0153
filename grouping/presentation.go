package grouping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marmotkit/Gold/models"
)

// GroupView - группа в том виде, в каком её показывает экран оператора.
type GroupView struct {
	Code         string               `json:"group_code"`
	Label        string               `json:"label"`
	PreGroupCode string               `json:"pre_group_code,omitempty"`
	Participants []models.Participant `json:"participants"`
}

// View - согласованный снимок всего движка.
type View struct {
	TournamentID      int         `json:"tournament_id"`
	Groups            []GroupView `json:"groups"`
	HasUnsavedChanges bool        `json:"has_unsaved_changes"`
	PendingEdits      int         `json:"pending_edits"`
	Drag              DragState   `json:"drag"`
}

// GroupLabel превращает код группы в подпись: "第 3 組" для чисел, подпись
// корзины без группы для служебного кода и сам код в остальных случаях.
func GroupLabel(code string) string {
	if models.IsUngrouped(code) {
		return models.UngroupedCode
	}
	if _, err := strconv.Atoi(strings.TrimSpace(code)); err == nil {
		return fmt.Sprintf("第 %s 組", strings.TrimSpace(code))
	}
	return code
}

// MajorityPreGroupCode возвращает код предварительной группы, общий для
// большинства участников. При равенстве побеждает встреченный первым;
// участники без кода не учитываются.
func MajorityPreGroupCode(members []models.Participant) string {
	counts := make(map[string]int)
	best, bestN := "", 0
	for _, p := range members {
		code := strings.TrimSpace(p.PreGroupCode)
		if code == "" {
			continue
		}
		counts[code]++
		if counts[code] > bestN {
			best, bestN = code, counts[code]
		}
	}
	return best
}

// View собирает снимок экрана под замком движка.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{
		TournamentID:      e.tournamentID,
		HasUnsavedChanges: e.unsaved,
		PendingEdits:      len(e.pending),
		Drag:              e.drag.State(),
	}
	for _, g := range e.index.Groups() {
		members := make([]models.Participant, 0, len(g.ParticipantIDs))
		for _, id := range g.ParticipantIDs {
			if p, ok := e.store.Get(id); ok {
				members = append(members, p)
			}
		}
		v.Groups = append(v.Groups, GroupView{
			Code:         g.Code,
			Label:        GroupLabel(g.Code),
			PreGroupCode: MajorityPreGroupCode(members),
			Participants: members,
		})
	}
	return v
}
