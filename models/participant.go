package models

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Gender представляет пол участника, как его хранит бэкенд.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// CheckInStatus представляет статус регистрации участника на месте.
type CheckInStatus string

const (
	CheckInNotCheckedIn CheckInStatus = "not_checked_in"
	CheckInCheckedIn    CheckInStatus = "checked_in"
	CheckInCancelled    CheckInStatus = "cancelled"
)

// UnratedHandicap - заглушка бэкенда для отсутствующего гандикапа.
const UnratedHandicap = 999.0

// Participant - одна строка состава турнира.
type Participant struct {
	ID                 int           `json:"id"`
	TournamentID       int           `json:"tournament_id"`
	RegistrationNumber string        `json:"registration_number"`
	MemberNumber       string        `json:"member_number"`
	Name               string        `json:"name"`
	Gender             Gender        `json:"gender"`
	Handicap           *float64      `json:"handicap"`
	PreGroupCode       string        `json:"pre_group_code"`
	GroupCode          *string       `json:"group_code"`
	DisplayOrder       int           `json:"display_order"`
	Notes              string        `json:"notes"`
	CheckInStatus      CheckInStatus `json:"check_in_status"`
	CheckInTime        *Timestamp    `json:"check_in_time,omitempty"`
}

// IsCheckedIn сообщает, отметился ли уже участник.
func (p Participant) IsCheckedIn() bool {
	return p.CheckInStatus == CheckInCheckedIn
}

// IsRated сообщает, есть ли у участника настоящий гандикап.
func (p Participant) IsRated() bool {
	return p.Handicap != nil && *p.Handicap < UnratedHandicap
}

// HandicapKey возвращает значение для сортировки по гандикапу.
// Участники без гандикапа получают +Inf и идут после всех остальных.
func (p Participant) HandicapKey() float64 {
	if !p.IsRated() {
		return math.Inf(1)
	}
	return *p.Handicap
}

// Group возвращает нормализованный код группы участника.
func (p Participant) Group() string {
	return NormalizeGroupCode(p.GroupCode)
}

// Clone возвращает глубокую копию, включая поля-указатели.
func (p Participant) Clone() Participant {
	c := p
	if p.Handicap != nil {
		h := *p.Handicap
		c.Handicap = &h
	}
	if p.GroupCode != nil {
		g := *p.GroupCode
		c.GroupCode = &g
	}
	if p.CheckInTime != nil {
		t := *p.CheckInTime
		c.CheckInTime = &t
	}
	return c
}

var (
	bracketNumberRe = regexp.MustCompile(`\(([-+]?\d+\.?\d*)\)`)
	anyNumberRe     = regexp.MustCompile(`[-+]?\d+\.?\d*`)
)

// ParseHandicap превращает гандикап из свободного текста в значение.
// Пустая строка и "nan" дают nil (без гандикапа). "Pro (2.4)" даёт 2.4.
func ParseHandicap(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return handicapOrNil(v)
	}
	if m := bracketNumberRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return handicapOrNil(v)
		}
	}
	if m := anyNumberRe.FindString(s); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return handicapOrNil(v)
		}
	}
	return nil
}

func handicapOrNil(v float64) *float64 {
	if math.IsNaN(v) || v >= UnratedHandicap {
		return nil
	}
	return &v
}

// FormatHandicap - обратная к ParseHandicap функция для корректных значений.
func FormatHandicap(h *float64) string {
	if h == nil || *h >= UnratedHandicap {
		return ""
	}
	return strconv.FormatFloat(*h, 'f', -1, 64)
}
