package models

import (
	"fmt"
	"strings"
)

// Field - отдельный атрибут участника, который можно менять сам по себе.
type Field string

const (
	FieldNotes         Field = "notes"
	FieldHandicap      Field = "handicap"
	FieldGender        Field = "gender"
	FieldGroupCode     Field = "group_code"
	FieldCheckInStatus Field = "check_in_status"
)

// ParseField проверяет имя поля из пути запроса.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.TrimSpace(s)); f {
	case FieldNotes, FieldHandicap, FieldGender, FieldGroupCode, FieldCheckInStatus:
		return f, nil
	default:
		return "", fmt.Errorf("unknown participant field %q", s)
	}
}

// Validate проверяет, допустимо ли value для поля.
func (f Field) Validate(value string) error {
	switch f {
	case FieldGender:
		if g := Gender(value); g != GenderMale && g != GenderFemale {
			return fmt.Errorf("gender must be %q or %q, got %q", GenderMale, GenderFemale, value)
		}
	case FieldCheckInStatus:
		switch CheckInStatus(value) {
		case CheckInNotCheckedIn, CheckInCheckedIn, CheckInCancelled:
		default:
			return fmt.Errorf("invalid check-in status %q", value)
		}
	case FieldNotes, FieldHandicap, FieldGroupCode:
	default:
		return fmt.Errorf("unknown participant field %q", string(f))
	}
	return nil
}

// Apply записывает value в соответствующий атрибут p.
func (f Field) Apply(p *Participant, value string) {
	switch f {
	case FieldNotes:
		p.Notes = value
	case FieldHandicap:
		p.Handicap = ParseHandicap(value)
	case FieldGender:
		p.Gender = Gender(value)
	case FieldGroupCode:
		if IsUngrouped(value) {
			p.GroupCode = nil
		} else {
			code := value
			p.GroupCode = &code
		}
	case FieldCheckInStatus:
		p.CheckInStatus = CheckInStatus(value)
	}
}

// Value читает атрибут обратно в том же строковом виде, что принимает Apply.
func (f Field) Value(p Participant) string {
	switch f {
	case FieldNotes:
		return p.Notes
	case FieldHandicap:
		return FormatHandicap(p.Handicap)
	case FieldGender:
		return string(p.Gender)
	case FieldGroupCode:
		if p.GroupCode == nil {
			return ""
		}
		return *p.GroupCode
	case FieldCheckInStatus:
		return string(p.CheckInStatus)
	}
	return ""
}
