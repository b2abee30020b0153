package grouping

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/marmotkit/Gold/models"
)

var groupNumberRe = regexp.MustCompile(`\d+`)

// groupNumber извлекает первое целое число из кода группы ("第 12 組" -> 12).
func groupNumber(code string) (int, bool) {
	m := groupNumberRe.FindString(code)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CompareGroupCodes задаёт порядок групп на экране: числовые коды по номеру,
// затем коды без цифр лексикографически, корзина без группы последней.
func CompareGroupCodes(a, b string) int {
	ua, ub := models.IsUngrouped(a), models.IsUngrouped(b)
	switch {
	case ua && ub:
		return 0
	case ua:
		return 1
	case ub:
		return -1
	}

	na, okA := groupNumber(a)
	nb, okB := groupNumber(b)
	switch {
	case okA && okB:
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	case okA:
		return -1
	case okB:
		return 1
	}

	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortGroupCodes сортирует коды на месте через CompareGroupCodes.
func SortGroupCodes(codes []string) {
	sort.SliceStable(codes, func(i, j int) bool {
		return CompareGroupCodes(codes[i], codes[j]) < 0
	})
}

// lessMember - порядок внутри группы при построении индекса из хранилища:
// display order, затем регистрационный номер.
func lessMember(a, b *models.Participant) bool {
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder < b.DisplayOrder
	}
	if a.RegistrationNumber != b.RegistrationNumber {
		return a.RegistrationNumber < b.RegistrationNumber
	}
	return a.ID < b.ID
}
