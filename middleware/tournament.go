package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const tournamentContextKey contextKey = "tournament_id"

// TournamentID разбирает параметр URL {tournamentID} и кладёт его в контекст
// запроса. На отсутствующий или неположительный id отвечает 400.
func TournamentID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "tournamentID")
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprintf(w, "{\"error\":%q}\n", "invalid tournament ID: "+raw)
			return
		}
		ctx := context.WithValue(r.Context(), tournamentContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetTournamentIDFromContext(ctx context.Context) (int, error) {
	id, ok := ctx.Value(tournamentContextKey).(int)
	if !ok {
		return 0, errors.New("tournament ID not found in context")
	}
	return id, nil
}
