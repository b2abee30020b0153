package services

import "errors"

// Ошибки сервиса сессий, используемые в маппинге HTTP.
var (
	ErrInvalidTournamentID = errors.New("tournament ID must be positive")
	ErrSessionNotOpen      = errors.New("no operator session is open for this tournament")
	ErrServiceClosed       = errors.New("session service is shutting down")
	ErrArchiveDisabled     = errors.New("export archiving is not configured")
)
