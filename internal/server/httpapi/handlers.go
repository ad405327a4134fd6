package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/services"
)

type userRequest struct {
	UserID string `json:"userId"`
}

type failedTask struct {
	TaskID string `json:"taskId"`
	Op     string `json:"op"`
	Error  string `json:"error"`
}

type resetResponse struct {
	Status        string       `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	ArchivedCount int          `json:"archivedCount"`
	DeletedCount  int          `json:"deletedCount"`
	PointsEarned  int          `json:"pointsEarned"`
	MoodBefore    string       `json:"moodBefore,omitempty"`
	MoodAfter     string       `json:"moodAfter,omitempty"`
	FailedTasks   []failedTask `json:"failedTasks"`
	Error         string       `json:"error,omitempty"`
}

type notifyResponse struct {
	Sent     bool   `json:"sent"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type enrollRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type createTaskRequest struct {
	Title         string `json:"title"`
	IsSustainable bool   `json:"isSustainable"`
}

type taskResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Title         string     `json:"title"`
	Completed     bool       `json:"completed"`
	IsSustainable bool       `json:"isSustainable"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

type progressResponse struct {
	UserID            string     `json:"userId"`
	DailyPoints       int        `json:"dailyPoints"`
	AllTimePoints     int64      `json:"allTimePoints"`
	Mood              string     `json:"mood"`
	CycleStart        *time.Time `json:"cycleStart,omitempty"`
	LastActivityAt    *time.Time `json:"lastActivityAt,omitempty"`
	NextResetAt       *time.Time `json:"nextResetAt,omitempty"`
	SecondsUntilReset int64      `json:"secondsUntilReset"`
	ResetDue          bool       `json:"resetDue"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReset(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, resetResponse{Status: string(services.ResetStatusError), FailedTasks: []failedTask{}, Error: "invalid request body"})
		return
	}

	result, err := s.resets.RunReset(c.Request.Context(), req.UserID, s.now())
	if err != nil {
		c.JSON(statusFor(err), resetResponse{Status: string(services.ResetStatusError), FailedTasks: []failedTask{}, Error: errorMessage(c, err)})
		return
	}

	resp := resetResponse{
		Status:        string(result.Status),
		Reason:        result.Reason,
		ArchivedCount: result.ArchivedCount,
		DeletedCount:  result.DeletedCount,
		PointsEarned:  result.PointsEarned,
		MoodBefore:    string(result.MoodBefore),
		MoodAfter:     string(result.MoodAfter),
		FailedTasks:   make([]failedTask, 0, len(result.Failures)),
	}
	for _, f := range result.Failures {
		resp.FailedTasks = append(resp.FailedTasks, failedTask{TaskID: f.TaskID, Op: f.Op, Error: f.Err.Error()})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNotifyCheck(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, notifyResponse{Error: "invalid request body"})
		return
	}

	result, err := s.notify.MaybeNotify(c.Request.Context(), req.UserID, s.now())
	if err != nil {
		resp := notifyResponse{Error: errorMessage(c, err)}
		if result != nil {
			resp.Sent = result.Sent
			resp.Reason = result.Reason
			resp.Attempts = result.Attempts
		}
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, notifyResponse{Sent: result.Sent, Reason: result.Reason, Attempts: result.Attempts})
}

func (s *Server) handleEnroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	p, err := s.tasks.Enroll(c.Request.Context(), req.UserID, req.Email, s.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"userId":     p.UserID,
		"email":      p.Email,
		"mood":       p.MoodTier,
		"cycleStart": p.CycleStart,
	})
}

func (s *Server) handleProgress(c *gin.Context) {
	view, err := s.tasks.Progress(c.Request.Context(), c.Param("userId"), s.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progressResponse{
		UserID:            view.UserID,
		DailyPoints:       view.DailyPoints,
		AllTimePoints:     view.AllTimePoints,
		Mood:              string(view.Mood),
		CycleStart:        view.CycleStart,
		LastActivityAt:    view.LastActivityAt,
		NextResetAt:       view.NextResetAt,
		SecondsUntilReset: view.SecondsUntilReset,
		ResetDue:          view.ResetDue,
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	task, err := s.tasks.CreateTask(c.Request.Context(), c.Param("userId"), req.Title, req.IsSustainable, s.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTaskResponse(task))
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	task, err := s.tasks.CompleteTask(c.Request.Context(), c.Param("userId"), c.Param("taskId"), s.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(task))
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": errorMessage(c, err)})
}

// errorMessage is the client-facing text for err. Client errors are reported
// as is; server-side failures are reduced to their category and the full
// error goes to the request log.
func errorMessage(c *gin.Context, err error) string {
	_ = c.Error(err)
	if statusFor(err) < http.StatusInternalServerError {
		return err.Error()
	}
	switch {
	case errors.Is(err, common.ErrStorage):
		return common.ErrStorage.Error()
	case errors.Is(err, common.ErrNotifier):
		return common.ErrNotifier.Error()
	default:
		return common.ErrorInternal.Error()
	}
}

func toTaskResponse(t *models.Task) taskResponse {
	return taskResponse{
		ID:            t.ID,
		UserID:        t.UserID,
		Title:         t.Title,
		Completed:     t.Completed,
		IsSustainable: t.IsSustainable,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}
