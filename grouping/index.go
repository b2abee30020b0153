package grouping

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/marmotkit/Gold/models"
)

// Group - представление одной группы индекса только для чтения.
type Group struct {
	Code           string `json:"group_code"`
	ParticipantIDs []int  `json:"participant_ids"`
}

// Index раскладывает Store по упорядоченным группам. Каждый участник хранилища
// находится ровно в одной группе; корзина без группы существует всегда и всегда
// последняя. Изменения записывают group_code и display_order обратно в
// хранилище, чтобы они не расходились.
type Index struct {
	store   *Store
	order   []string
	members map[string][]int
	groupOf map[int]string
}

func NewIndex(store *Store) *Index {
	ix := &Index{store: store}
	ix.Rebuild(false)
	return ix
}

// Rebuild заново выводит группы из хранилища. С keepOrder текущий порядок групп
// (включая пустые) сохраняется, а новые коды встают на свои места; иначе
// порядок строится только по кодам.
func (ix *Index) Rebuild(keepOrder bool) {
	prev := ix.order

	ix.members = make(map[string][]int)
	ix.groupOf = make(map[int]string, ix.store.Len())
	for id, p := range ix.store.byID {
		code := p.Group()
		ix.members[code] = append(ix.members[code], id)
		ix.groupOf[id] = code
	}
	for code, ids := range ix.members {
		sort.Slice(ids, func(i, j int) bool {
			return lessMember(ix.store.ref(ids[i]), ix.store.ref(ids[j]))
		})
		ix.members[code] = ids
	}

	ix.order = ix.order[:0:0]
	if keepOrder {
		for _, code := range prev {
			if code == models.UngroupedCode {
				continue
			}
			ix.order = append(ix.order, code)
			if _, ok := ix.members[code]; !ok {
				ix.members[code] = nil
			}
		}
	}
	var fresh []string
	for code := range ix.members {
		if code != models.UngroupedCode && !slices.Contains(ix.order, code) {
			fresh = append(fresh, code)
		}
	}
	SortGroupCodes(fresh)
	for _, code := range fresh {
		ix.insertCode(code)
	}
	ix.order = append(ix.order, models.UngroupedCode)
	if _, ok := ix.members[models.UngroupedCode]; !ok {
		ix.members[models.UngroupedCode] = nil
	}
}

// insertCode ставит code перед первой группой, которая сортируется после него.
// Корзины без группы в ix.order либо ещё нет, либо она последняя.
func (ix *Index) insertCode(code string) {
	pos := len(ix.order)
	for i, c := range ix.order {
		if c == models.UngroupedCode || CompareGroupCodes(code, c) < 0 {
			pos = i
			break
		}
	}
	ix.order = slices.Insert(ix.order, pos, code)
}

func normalizeCode(code string) string {
	if models.IsUngrouped(code) {
		return models.UngroupedCode
	}
	return strings.TrimSpace(code)
}

// Has сообщает, есть ли группа с кодом code.
func (ix *Index) Has(code string) bool {
	_, ok := ix.members[normalizeCode(code)]
	return ok
}

// GroupOf возвращает код группы, в которой находится id.
func (ix *Index) GroupOf(id int) (string, bool) {
	code, ok := ix.groupOf[id]
	return code, ok
}

// Position возвращает группу и позицию id.
func (ix *Index) Position(id int) (string, int, bool) {
	code, ok := ix.groupOf[id]
	if !ok {
		return "", 0, false
	}
	return code, slices.Index(ix.members[code], id), true
}

// Members возвращает копию списка участников группы.
func (ix *Index) Members(code string) ([]int, error) {
	ids, ok := ix.members[normalizeCode(code)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, code)
	}
	return slices.Clone(ids), nil
}

// Codes возвращает коды групп в порядке отображения.
func (ix *Index) Codes() []string {
	return slices.Clone(ix.order)
}

// Groups возвращает все группы в порядке отображения.
func (ix *Index) Groups() []Group {
	out := make([]Group, 0, len(ix.order))
	for _, code := range ix.order {
		ids := slices.Clone(ix.members[code])
		if ids == nil {
			ids = []int{}
		}
		out = append(out, Group{Code: code, ParticipantIDs: ids})
	}
	return out
}

// Layout собирает тело массового сохранения.
func (ix *Index) Layout() models.GroupLayout {
	layout := models.GroupLayout{GroupOrder: []string{}}
	for _, g := range ix.Groups() {
		layout.Groups = append(layout.Groups, models.GroupAssignment{
			GroupCode:      g.Code,
			ParticipantIDs: g.ParticipantIDs,
		})
		if g.Code != models.UngroupedCode {
			layout.GroupOrder = append(layout.GroupOrder, g.Code)
		}
	}
	return layout
}

// MoveParticipant вынимает id из его группы и вставляет на позицию targetIndex
// группы target (с ограничением по границам). Обе группы перенумеровываются
// 0..n-1. Перенос на собственное место возвращает changed == false и ничего не трогает.
func (ix *Index) MoveParticipant(id int, target string, targetIndex int) (changed bool, err error) {
	target = normalizeCode(target)
	dst, ok := ix.members[target]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrGroupNotFound, target)
	}
	src, ok := ix.groupOf[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrParticipantNotFound, id)
	}
	pos := slices.Index(ix.members[src], id)

	if src == target {
		idx := clamp(targetIndex, 0, len(dst)-1)
		if idx == pos {
			return false, nil
		}
		seq := slices.Delete(slices.Clone(dst), pos, pos+1)
		ix.members[target] = slices.Insert(seq, idx, id)
		ix.renumber(target)
		return true, nil
	}

	ix.members[src] = slices.Delete(slices.Clone(ix.members[src]), pos, pos+1)
	idx := clamp(targetIndex, 0, len(dst))
	ix.members[target] = slices.Insert(slices.Clone(dst), idx, id)
	ix.groupOf[id] = target
	ix.renumber(src)
	ix.renumber(target)
	return true, nil
}

// AddGroup создает пустую группу.
func (ix *Index) AddGroup(code string) error {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return validationErrorf(ErrInvalidGroupCode, "group code must not be empty")
	}
	if models.IsUngrouped(trimmed) {
		return validationErrorf(ErrDuplicateGroup, "%q is reserved", trimmed)
	}
	if _, ok := ix.members[trimmed]; ok {
		return validationErrorf(ErrDuplicateGroup, "%q", trimmed)
	}
	ix.members[trimmed] = nil
	ix.insertCode(trimmed)
	return nil
}

// DeleteGroup переносит всех участников code в конец корзины без группы,
// сохраняя их взаимный порядок, и удаляет группу.
func (ix *Index) DeleteGroup(code string) error {
	code = normalizeCode(code)
	if code == models.UngroupedCode {
		return validationErrorf(ErrProtectedGroup, "cannot delete %q", code)
	}
	ids, ok := ix.members[code]
	if !ok {
		return fmt.Errorf("%w: %q", ErrGroupNotFound, code)
	}

	moved := slices.Clone(ids)
	sort.SliceStable(moved, func(i, j int) bool {
		return ix.store.ref(moved[i]).DisplayOrder < ix.store.ref(moved[j]).DisplayOrder
	})
	ix.members[models.UngroupedCode] = append(slices.Clone(ix.members[models.UngroupedCode]), moved...)
	for _, id := range moved {
		ix.groupOf[id] = models.UngroupedCode
	}
	delete(ix.members, code)
	ix.order = slices.DeleteFunc(ix.order, func(c string) bool { return c == code })
	ix.renumber(models.UngroupedCode)
	return nil
}

// SortGroupByHandicap устойчиво сортирует группу по возрастанию гандикапа,
// участники без гандикапа идут в конце; затем группа перенумеровывается.
func (ix *Index) SortGroupByHandicap(code string) error {
	code = normalizeCode(code)
	ids, ok := ix.members[code]
	if !ok {
		return fmt.Errorf("%w: %q", ErrGroupNotFound, code)
	}
	sorted := slices.Clone(ids)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ix.store.ref(sorted[i]).HandicapKey() < ix.store.ref(sorted[j]).HandicapKey()
	})
	ix.members[code] = sorted
	ix.renumber(code)
	return nil
}

// ReorderGroups меняет местами две группы. Участники остаются на местах.
func (ix *Index) ReorderGroups(codeA, codeB string) error {
	codeA, codeB = normalizeCode(codeA), normalizeCode(codeB)
	if codeA == models.UngroupedCode || codeB == models.UngroupedCode {
		return validationErrorf(ErrProtectedGroup, "the ungrouped bucket always sorts last")
	}
	i, j := slices.Index(ix.order, codeA), slices.Index(ix.order, codeB)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrGroupNotFound, codeA)
	}
	if j < 0 {
		return fmt.Errorf("%w: %q", ErrGroupNotFound, codeB)
	}
	ix.order[i], ix.order[j] = ix.order[j], ix.order[i]
	return nil
}

// remove убирает id из его группы без перенумерации остальных.
func (ix *Index) remove(id int) {
	code, ok := ix.groupOf[id]
	if !ok {
		return
	}
	ix.members[code] = slices.DeleteFunc(slices.Clone(ix.members[code]), func(v int) bool { return v == id })
	delete(ix.groupOf, id)
}

func (ix *Index) renumber(code string) {
	for i, id := range ix.members[code] {
		p := ix.store.ref(id)
		p.DisplayOrder = i
		if code == models.UngroupedCode {
			p.GroupCode = nil
		} else {
			c := code
			p.GroupCode = &c
		}
	}
}

// Verify проверяет, что каждый участник хранилища находится ровно в одной
// группе и что ни одна группа не ссылается на неизвестного участника.
func (ix *Index) Verify() error {
	seen := make(map[int]string, ix.store.Len())
	for _, code := range ix.order {
		for _, id := range ix.members[code] {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("participant %d is in both %q and %q", id, prev, code)
			}
			if !ix.store.Has(id) {
				return fmt.Errorf("group %q references unknown participant %d", code, id)
			}
			seen[id] = code
		}
	}
	if len(ix.order) != len(ix.members) {
		return fmt.Errorf("group order lists %d groups, index holds %d", len(ix.order), len(ix.members))
	}
	for id := range ix.store.byID {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("participant %d is in no group", id)
		}
	}
	if n := len(ix.order); n == 0 || ix.order[n-1] != models.UngroupedCode {
		return fmt.Errorf("ungrouped bucket is not last")
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
