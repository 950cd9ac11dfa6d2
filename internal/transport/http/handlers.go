package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/app"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// Handler serves the blitz REST API on top of the coordinator.
type Handler struct {
	coord    *app.Coordinator
	validate *validator.Validate
}

func NewHandler(coord *app.Coordinator) *Handler {
	return &Handler{coord: coord, validate: validator.New()}
}

type createSessionRequest struct {
	DeckID           string `json:"deckId" validate:"required,max=128"`
	DisplayName      string `json:"displayName" validate:"max=80"`
	QuestionCount    int    `json:"questionCount" validate:"gte=0"`
	TimeLimitMinutes int    `json:"timeLimitMinutes" validate:"gte=0"`
	TeacherMode      bool   `json:"teacherMode"`
	Practice         bool   `json:"practice"`
	PointsCorrect    *int   `json:"pointsCorrect" validate:"omitnil,gte=0,lte=100"`
	PointsIncorrect  *int   `json:"pointsIncorrect" validate:"omitnil,gte=-100,lte=0"`
}

type joinRequest struct {
	Code        string `json:"code" validate:"required"`
	DisplayName string `json:"displayName" validate:"max=80"`
}

type answerRequest struct {
	PlayerID   string `json:"playerId" validate:"required"`
	QuestionID string `json:"questionId" validate:"required"`
	IsCorrect  bool   `json:"isCorrect"`
	AnswerText string `json:"answerText" validate:"max=500"`
}

type historyResponse struct {
	Answers []domain.AnswerView `json:"answers"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts := app.CreateOptions{
		DeckID:           req.DeckID,
		DisplayName:      req.DisplayName,
		QuestionCount:    req.QuestionCount,
		TimeLimitMinutes: req.TimeLimitMinutes,
		TeacherMode:      req.TeacherMode,
		Practice:         req.Practice,
	}
	if req.PointsCorrect != nil || req.PointsIncorrect != nil {
		weights := app.DefaultWeights
		if req.PointsCorrect != nil {
			weights.Correct = *req.PointsCorrect
		}
		if req.PointsIncorrect != nil {
			weights.Incorrect = *req.PointsIncorrect
		}
		opts.Weights = &weights
	}

	user, _ := UserFrom(r.Context())
	res, err := h.coord.Create(r.Context(), user, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, _ := UserFrom(r.Context())
	res, err := h.coord.Join(r.Context(), req.Code, req.DisplayName, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	state, err := h.coord.GetState(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	state, err := h.coord.Start(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, _ := UserFrom(r.Context())
	res, err := h.coord.SubmitAnswer(r.Context(), r.PathValue("id"), app.AnswerInput{
		PlayerID:   req.PlayerID,
		QuestionID: req.QuestionID,
		IsCorrect:  req.IsCorrect,
		AnswerText: req.AnswerText,
	}, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) KickPlayer(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	if err := h.coord.KickPlayer(r.Context(), r.PathValue("id"), r.PathValue("playerId"), user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	if err := h.coord.Cancel(r.Context(), r.PathValue("id"), user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	answers, err := h.coord.History(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Answers: answers})
}

// decode reads a JSON body into dst and validates its tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed json body", domain.ErrInvalidArgument)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}
