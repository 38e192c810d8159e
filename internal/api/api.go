// Package api exposes the session engine and the leaderboard over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/session"
)

type Sessions interface {
	StartSingle(ctx context.Context, p domain.Player, quizID int64) error
	SubmitAnswer(ctx context.Context, p domain.Player, text string) error
	JoinQueue(ctx context.Context, p domain.Player) (*session.JoinQueueResponse, error)
	LeaveQueue(ctx context.Context, p domain.PlayerID) error
	End(ctx context.Context, p domain.Player) error
	Current(p domain.PlayerID) (session.Ref, bool)
}

type Quizzes interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

type Leaderboard interface {
	Rank(ctx context.Context) (*domain.Leaderboard, error)
}

type Scores interface {
	Clear(ctx context.Context) error
}

type Config struct {
	Engine      *gin.Engine
	Sessions    Sessions
	Quizzes     Quizzes
	Leaderboard Leaderboard
	Scores      Scores
}

type API struct {
	sessions    Sessions
	quizzes     Quizzes
	leaderboard Leaderboard
	scores      Scores
}

func New(c Config) *API {
	a := &API{
		sessions:    c.Sessions,
		quizzes:     c.Quizzes,
		leaderboard: c.Leaderboard,
		scores:      c.Scores,
	}

	e := c.Engine
	e.GET("/quizzes", a.ListQuizzes)
	e.GET("/leaderboard", a.GetLeaderboard)
	e.DELETE("/leaderboard", a.ClearLeaderboard)

	p := e.Group("/players/:id")
	p.POST("/single", a.StartSingle)
	p.POST("/answers", a.SubmitAnswer)
	p.POST("/queue", a.JoinQueue)
	p.DELETE("/queue", a.LeaveQueue)
	p.GET("/session", a.GetSession)
	p.DELETE("/session", a.EndSession)

	return a
}

type (
	Quiz struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	LeaderboardEntry struct {
		Rank           int             `json:"rank"`
		PlayerID       int64           `json:"player_id"`
		Username       string          `json:"username"`
		QuizName       string          `json:"quiz_name"`
		Score          int             `json:"score"`
		TotalQuestions int             `json:"total_questions"`
		Percentage     decimal.Decimal `json:"percentage"`
	}

	StartSingleRequest struct {
		QuizID   int64  `json:"quiz_id" binding:"required"`
		Username string `json:"username"`
	}

	SubmitAnswerRequest struct {
		Text     string `json:"text" binding:"required"`
		Username string `json:"username"`
	}

	JoinQueueRequest struct {
		Username string `json:"username"`
	}

	JoinQueueResponse struct {
		Status   string `json:"status"`
		MatchID  string `json:"match_id,omitempty"`
		Opponent string `json:"opponent,omitempty"`
	}

	Session struct {
		Kind     string `json:"kind"`
		QuizID   int64  `json:"quiz_id,omitempty"`
		MatchID  string `json:"match_id,omitempty"`
		Opponent string `json:"opponent,omitempty"`
		Index    int    `json:"index"`
		Total    int    `json:"total"`
		Score    int    `json:"score"`
	}
)

func (a *API) ListQuizzes(c *gin.Context) {
	qs, err := a.quizzes.ListQuizzes(c)
	if err != nil {
		renderError(c, err)
		return
	}

	resp := make([]Quiz, 0, len(qs))
	for _, q := range qs {
		resp = append(resp, Quiz{ID: q.QuizID, Name: q.Name})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.leaderboard.Rank(c)
	if err != nil {
		renderError(c, err)
		return
	}

	resp := make([]LeaderboardEntry, 0, len(l.Entries))
	for _, e := range l.Entries {
		resp = append(resp, LeaderboardEntry{
			Rank:           e.Rank,
			PlayerID:       int64(e.PlayerID),
			Username:       e.Username,
			QuizName:       e.QuizName,
			Score:          e.Score,
			TotalQuestions: e.TotalQuestions,
			Percentage:     e.Percentage,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) ClearLeaderboard(c *gin.Context) {
	if err := a.scores.Clear(c); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) StartSingle(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	var req StartSingleRequest
	if !bind(c, &req) {
		return
	}

	p := domain.Player{ID: id, Name: req.Username}
	if err := a.sessions.StartSingle(c, p, req.QuizID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (a *API) SubmitAnswer(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	var req SubmitAnswerRequest
	if !bind(c, &req) {
		return
	}

	if err := a.sessions.SubmitAnswer(c, domain.Player{ID: id, Name: req.Username}, req.Text); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (a *API) JoinQueue(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	var req JoinQueueRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}

	resp, err := a.sessions.JoinQueue(c, domain.Player{ID: id, Name: req.Username})
	if err != nil {
		renderError(c, err)
		return
	}

	out := JoinQueueResponse{Status: string(resp.Status), MatchID: resp.MatchID}
	if resp.Status == session.JoinPaired {
		out.Opponent = resp.Opponent.DisplayName()
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) LeaveQueue(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	if err := a.sessions.LeaveQueue(c, id); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) GetSession(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	ref, ok := a.sessions.Current(id)
	if !ok {
		renderError(c, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonNoSession),
			errors.WithMessagef("no active session: player=%d", id),
		))
		return
	}

	out := Session{
		Kind:    string(ref.Kind),
		QuizID:  ref.QuizID,
		MatchID: ref.MatchID,
		Index:   ref.Index,
		Total:   ref.Total,
		Score:   ref.Score,
	}
	if ref.Kind == session.KindMatch {
		out.Opponent = ref.Opponent.DisplayName()
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) EndSession(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	if err := a.sessions.End(c, domain.Player{ID: id}); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func playerID(c *gin.Context) (domain.PlayerID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid player id %q", c.Param("id")),
			errors.WithCause(err),
		))
		return 0, false
	}
	return domain.PlayerID(id), true
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body: %v", err),
			errors.WithCause(err),
		))
		return false
	}
	return true
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)

	code := e.HTTPStatusCode()
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(c, "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(code, e)
}
