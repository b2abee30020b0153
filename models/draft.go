package models

import "time"

// GroupDraft - несохранённая раскладка, отложенная в сторону, чтобы сессию
// оператора можно было продолжить после перезапуска.
type GroupDraft struct {
	TournamentID int         `json:"tournament_id"`
	Layout       GroupLayout `json:"layout"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
