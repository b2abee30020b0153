package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marmotkit/Gold/models"
)

var (
	ErrDraftNotFound       = errors.New("group draft not found")
	ErrDraftInvalid        = errors.New("group draft violates a table constraint")
	ErrDraftPayloadCorrupt = errors.New("group draft payload is not a valid layout")
)

type DraftRepository interface {
	// Save создает или заменяет черновик турнира.
	Save(ctx context.Context, tournamentID int, layout models.GroupLayout) error
	Get(ctx context.Context, tournamentID int) (*models.GroupDraft, error)
	Delete(ctx context.Context, tournamentID int) error
}

type postgresDraftRepository struct {
	db *sql.DB
}

func NewPostgresDraftRepository(db *sql.DB) DraftRepository {
	return &postgresDraftRepository{db: db}
}

func (r *postgresDraftRepository) Save(ctx context.Context, tournamentID int, layout models.GroupLayout) error {
	payload, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("failed to encode draft for tournament %d: %w", tournamentID, err)
	}

	query := `
		INSERT INTO group_drafts (tournament_id, layout, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tournament_id)
		DO UPDATE SET layout = EXCLUDED.layout, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, tournamentID, payload); err != nil {
		switch pqCode(err) {
		case "23514", "22P02": // check_violation, invalid_text_representation
			return ErrDraftInvalid
		}
		return fmt.Errorf("failed to save draft for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (r *postgresDraftRepository) Get(ctx context.Context, tournamentID int) (*models.GroupDraft, error) {
	query := `SELECT tournament_id, layout, updated_at FROM group_drafts WHERE tournament_id = $1`

	var (
		d   models.GroupDraft
		raw []byte
	)
	err := r.db.QueryRowContext(ctx, query, tournamentID).Scan(&d.TournamentID, &raw, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to get draft for tournament %d: %w", tournamentID, err)
	}
	if err := json.Unmarshal(raw, &d.Layout); err != nil {
		return nil, fmt.Errorf("%w: tournament %d: %v", ErrDraftPayloadCorrupt, tournamentID, err)
	}
	return &d, nil
}

func (r *postgresDraftRepository) Delete(ctx context.Context, tournamentID int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM group_drafts WHERE tournament_id = $1`, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to delete draft for tournament %d: %w", tournamentID, err)
	}
	return checkAffectedRows(result, ErrDraftNotFound)
}
