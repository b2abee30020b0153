package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/marmotkit/Gold/grouping"
	"github.com/marmotkit/Gold/middleware"
	"github.com/marmotkit/Gold/models"
	"github.com/marmotkit/Gold/services"
)

type SessionHandler struct {
	sessionService services.SessionService
}

func NewSessionHandler(ss services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: ss}
}

type DragStartInput struct {
	ParticipantID int `json:"participant_id"`
}

type DragOverInput struct {
	GroupCode string `json:"group_code"`
}

type MoveInput struct {
	GroupCode string `json:"group_code"`
	Index     int    `json:"index"`
}

type FieldInput struct {
	Value string `json:"value"`
}

type GroupInput struct {
	GroupCode string `json:"group_code"`
}

type ReorderInput struct {
	GroupA string `json:"group_a"`
	GroupB string `json:"group_b"`
}

// engine определяет турнир запроса и открывает его сессию.
func (h *SessionHandler) engine(w http.ResponseWriter, r *http.Request) (*grouping.Engine, bool) {
	tournamentID, err := middleware.GetTournamentIDFromContext(r.Context())
	if err != nil {
		badRequestResponse(w, r, err)
		return nil, false
	}
	engine, err := h.sessionService.Open(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return nil, false
	}
	return engine, true
}

func (h *SessionHandler) writeView(w http.ResponseWriter, r *http.Request, status int, engine *grouping.Engine) {
	if err := writeJSON(w, status, engine.View(), nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetSession godoc
// @Summary Текущая раскладка групп турнира
// @Tags sessions
// @Description Открывает сессию при первом обращении и возвращает группы, флаг несохранённых изменений и состояние перетаскивания.
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} grouping.View
// @Failure 400 {object} map[string]string "Некорректный ID"
// @Failure 502 {object} map[string]string "Бэкенд недоступен"
// @Router /sessions/{tournamentID} [get]
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, http.StatusOK, engine)
}

// Reload godoc
// @Summary Синхронизация с бэкендом
// @Tags sessions
// @Description Загружает свежий снимок участников и сливает его с локальными правками (возврат фокуса окну).
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} grouping.View
// @Failure 502 {object} map[string]string "Бэкенд недоступен"
// @Router /sessions/{tournamentID}/reload [post]
func (h *SessionHandler) Reload(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.Reload(r.Context()); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, engine)
}

// DragStart godoc
// @Summary Начать перетаскивание участника
// @Tags drag
// @Accept json
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param body body DragStartInput true "Участник"
// @Success 200 {object} grouping.DragState
// @Failure 404 {object} map[string]string "Участник не найден"
// @Router /sessions/{tournamentID}/drag/start [post]
func (h *SessionHandler) DragStart(w http.ResponseWriter, r *http.Request) {
	var input DragStartInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.DragStart(input.ParticipantID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, engine.DragState(), nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DragOver godoc
// @Summary Группа под курсором
// @Tags drag
// @Accept json
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param body body DragOverInput true "Группа"
// @Success 200 {object} grouping.DragState
// @Router /sessions/{tournamentID}/drag/over [post]
func (h *SessionHandler) DragOver(w http.ResponseWriter, r *http.Request) {
	var input DragOverInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.DragOver(input.GroupCode); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, engine.DragState(), nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Drop godoc
// @Summary Завершить перетаскивание
// @Tags drag
// @Description Индекс -1 означает конец группы. Пустой group_code берёт последнюю группу под курсором.
// @Accept json
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param body body grouping.DropTarget true "Цель"
// @Success 200 {object} map[string]interface{} "changed и текущая раскладка"
// @Router /sessions/{tournamentID}/drag/drop [post]
func (h *SessionHandler) Drop(w http.ResponseWriter, r *http.Request) {
	var target grouping.DropTarget
	if err := readJSON(w, r, &target); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	changed, err := engine.Drop(target)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"changed": changed, "session": engine.View()}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DragEnd godoc
// @Summary Отменить перетаскивание
// @Tags drag
// @Param tournamentID path int true "Tournament ID"
// @Success 204 "Без содержимого"
// @Router /sessions/{tournamentID}/drag/end [post]
func (h *SessionHandler) DragEnd(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	engine.DragEnd()
	w.WriteHeader(http.StatusNoContent)
}

// MoveParticipant godoc
// @Summary Переместить участника
// @Tags participants
// @Accept json
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param participantID path int true "Participant ID"
// @Param body body MoveInput true "Группа и позиция"
// @Success 200 {object} grouping.View
// @Failure 404 {object} map[string]string "Участник или группа не найдены"
// @Router /sessions/{tournamentID}/participants/{participantID}/move [post]
func (h *SessionHandler) MoveParticipant(w http.ResponseWriter, r *http.Request) {
	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input MoveInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.MoveParticipant(participantID, input.GroupCode, input.Index); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, engine)
}

func parseFieldParams(r *http.Request) (int, models.Field, error) {
	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		return 0, "", err
	}
	raw, err := getStringFromURL(r, "field")
	if err != nil {
		return 0, "", err
	}
	field, err := models.ParseField(raw)
	if err != nil {
		return 0, "", err
	}
	return participantID, field, nil
}

// EditField godoc
// @Summary Правка поля участника с задержкой записи
// @Tags participants
// @Description Значение применяется сразу, запись на бэкенд уходит после паузы ввода. Серия правок даёт одну запись.
// @Accept json
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param participantID path int true "Participant ID"
// @Param field path string true "notes | handicap | gender | check_in_status"
// @Param body body FieldInput true "Новое значение"
// @Success 202 {object} map[string]interface{} "Участник после локальной правки"
// @Failure 422 {object} map[string]string "Недопустимое значение"
// @Router /sessions/{tournamentID}/participants/{participantID}/fields/{field} [put]
func (h *SessionHandler) EditField(w http.ResponseWriter, r *http.Request) {
	participantID, field, err := parseFieldParams(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input FieldInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.Edit(participantID, field, input.Value); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	p, _ := engine.Participant(participantID)
	if err := writeJSON(w, http.StatusAccepted, jsonResponse{"participant": p}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CommitField godoc
// @Summary Немедленная запись поля участника
// @Tags participants
// @Accept json
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param participantID path int true "Participant ID"
// @Param field path string true "notes | handicap | gender | check_in_status"
// @Param body body FieldInput true "Новое значение"
// @Success 200 {object} map[string]interface{} "Участник после записи"
// @Failure 502 {object} map[string]string "Бэкенд отклонил запись"
// @Router /sessions/{tournamentID}/participants/{participantID}/fields/{field}/commit [put]
func (h *SessionHandler) CommitField(w http.ResponseWriter, r *http.Request) {
	participantID, field, err := parseFieldParams(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input FieldInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.Commit(r.Context(), participantID, field, input.Value); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	p, _ := engine.Participant(participantID)
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participant": p}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DeleteParticipant godoc
// @Summary Удалить участника
// @Tags participants
// @Param tournamentID path int true "Tournament ID"
// @Param participantID path int true "Participant ID"
// @Success 204 "Удалён"
// @Failure 400 {object} map[string]string "Участник уже зарегистрировался на месте"
// @Failure 404 {object} map[string]string "Участник не найден"
// @Router /sessions/{tournamentID}/participants/{participantID} [delete]
func (h *SessionHandler) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.DeleteParticipant(r.Context(), participantID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddGroup godoc
// @Summary Создать пустую группу
// @Tags groups
// @Accept json
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param body body GroupInput true "Код группы"
// @Success 201 {object} grouping.View
// @Failure 409 {object} map[string]string "Группа уже существует"
// @Failure 422 {object} map[string]string "Недопустимый код"
// @Router /sessions/{tournamentID}/groups [post]
func (h *SessionHandler) AddGroup(w http.ResponseWriter, r *http.Request) {
	var input GroupInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.AddGroup(input.GroupCode); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusCreated, engine)
}

// DeleteGroup godoc
// @Summary Удалить группу
// @Tags groups
// @Description Участники группы переходят в «未分組».
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param code path string true "Код группы"
// @Success 200 {object} grouping.View
// @Failure 400 {object} map[string]string "Группу «未分組» удалить нельзя"
// @Failure 404 {object} map[string]string "Группа не найдена"
// @Router /sessions/{tournamentID}/groups/{code} [delete]
func (h *SessionHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	code, err := getStringFromURL(r, "code")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.DeleteGroup(code); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, engine)
}

// SortGroupByHandicap godoc
// @Summary Отсортировать группу по гандикапу
// @Tags groups
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param code path string true "Код группы"
// @Success 200 {object} grouping.View
// @Failure 404 {object} map[string]string "Группа не найдена"
// @Router /sessions/{tournamentID}/groups/{code}/sort-by-handicap [post]
func (h *SessionHandler) SortGroupByHandicap(w http.ResponseWriter, r *http.Request) {
	code, err := getStringFromURL(r, "code")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.SortGroupByHandicap(code); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, engine)
}

// ReorderGroups godoc
// @Summary Поменять местами две группы
// @Tags groups
// @Accept json
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param body body ReorderInput true "Коды групп"
// @Success 200 {object} grouping.View
// @Router /sessions/{tournamentID}/groups/reorder [post]
func (h *SessionHandler) ReorderGroups(w http.ResponseWriter, r *http.Request) {
	var input ReorderInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.ReorderGroups(input.GroupA, input.GroupB); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, engine)
}

// Save godoc
// @Summary Сохранить раскладку групп
// @Tags sessions
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} grouping.View
// @Failure 409 {object} map[string]string "Сохранение уже выполняется"
// @Failure 502 {object} map[string]string "Бэкенд отклонил сохранение"
// @Router /sessions/{tournamentID}/save [post]
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := h.sessionService.Save(r.Context(), engine.TournamentID()); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, engine)
}

// AutoGroup godoc
// @Summary Автоматическая разбивка на группы
// @Tags sessions
// @Description Бэкенд распределяет участников, локальная раскладка заменяется его результатом.
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} grouping.View
// @Failure 409 {object} map[string]string "Разбивка уже выполняется"
// @Failure 502 {object} map[string]string "Бэкенд отклонил запрос"
// @Router /sessions/{tournamentID}/auto-group [post]
func (h *SessionHandler) AutoGroup(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := h.sessionService.AutoGroup(r.Context(), engine.TournamentID()); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, engine)
}

// Export godoc
// @Summary Выгрузка групп в Excel
// @Tags sessions
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {file} file "Файл выгрузки"
// @Failure 502 {object} map[string]string "Бэкенд недоступен"
// @Router /sessions/{tournamentID}/export [get]
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := middleware.GetTournamentIDFromContext(r.Context())
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	res, err := h.sessionService.Export(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	contentType := res.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.File.Data)))
	if disp := mime.FormatMediaType("attachment", map[string]string{"filename": res.File.Name}); disp != "" {
		w.Header().Set("Content-Disposition", disp)
	}
	if res.Archive != nil && res.Archive.Location != "" {
		w.Header().Set("X-Archive-Location", res.Archive.Location)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.File.Data)
}

// CloseSession godoc
// @Summary Закрыть сессию оператора
// @Tags sessions
// @Description Отложенные правки полей не отправляются.
// @Param tournamentID path int true "Tournament ID"
// @Success 204 "Закрыта"
// @Failure 404 {object} map[string]string "Сессия не открыта"
// @Router /sessions/{tournamentID} [delete]
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := middleware.GetTournamentIDFromContext(r.Context())
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.sessionService.CloseSession(tournamentID); err != nil {
		if errors.Is(err, services.ErrSessionNotOpen) {
			notFoundResponse(w, r, err.Error())
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
