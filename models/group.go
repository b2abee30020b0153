package models

import "strings"

// UngroupedCode - зарезервированный код группы участников без распределения.
// Бэкенд хранит таких участников с group_code NULL.
const UngroupedCode = "未分組"

// legacyUngroupedCode - то, что присылали для той же корзины старые фронтенды.
const legacyUngroupedCode = "None"

// IsUngrouped сообщает, обозначает ли code корзину без группы.
func IsUngrouped(code string) bool {
	code = strings.TrimSpace(code)
	return code == "" || code == UngroupedCode || code == legacyUngroupedCode
}

// NormalizeGroupCode превращает nullable код бэкенда в ключ индекса.
func NormalizeGroupCode(code *string) string {
	if code == nil || IsUngrouped(*code) {
		return UngroupedCode
	}
	return strings.TrimSpace(*code)
}

// GroupAssignment - одна группа в теле массового сохранения.
type GroupAssignment struct {
	GroupCode      string `json:"group_code"`
	ParticipantIDs []int  `json:"participant_ids"`
}

// GroupLayout - полная локальная раскладка: участники по группам и порядок
// групп на экране. Это и тело сохранения, и формат черновика.
type GroupLayout struct {
	Groups     []GroupAssignment `json:"groups"`
	GroupOrder []string          `json:"group_order"`
}

// ExportFile - файл, который отдаёт эндпоинт выгрузки бэкенда.
type ExportFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}
