package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"chip-todo/domain"
	"chip-todo/tracker"
)

const (
	maxBodySize   = 64 << 10
	maxImportSize = 16 << 20
	maxWeekOffset = 520
)

// Messages returned with 428 until the caller repeats the call with
// ?confirm=true.
const (
	confirmDeleteMember  = "确定要删除此成员吗？"
	confirmDeleteProject = "确定要删除此项目吗？"
	confirmDeleteTask    = "确定要删除此任务吗？"
	confirmArchive       = "确定要存档本周数据吗？存档后本周数据将移至历史记录。"
	confirmImport        = "导入将覆盖当前所有数据，确定要继续吗？建议先导出备份。"
)

var errInvalidBody = errors.New("invalid body")

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, logger *log.Logger) {
	register(e, svc, logger)
}

func register(e *echo.Echo, svc Services, logger *log.Logger) *handlers {
	h := &handlers{svc: svc, log: logger, broker: newUpdateBroker()}

	e.GET("/healthz", h.healthz)
	e.GET("/api/stream", streamChanges(svc.Board, h.broker))

	e.GET("/api/board", h.getBoard)
	e.GET("/api/week", h.getWeek)
	e.PUT("/api/week", h.putWeek)
	e.GET("/api/stats", h.getStats)

	e.GET("/api/members", h.listMembers)
	e.POST("/api/members", h.createMember)
	e.GET("/api/members/:id", h.getMember)
	e.PATCH("/api/members/:id", h.updateMember)
	e.DELETE("/api/members/:id", h.deleteMember)

	e.GET("/api/projects", h.listProjects)
	e.POST("/api/projects", h.createProject)
	e.GET("/api/projects/:id", h.getProject)
	e.PATCH("/api/projects/:id", h.updateProject)
	e.DELETE("/api/projects/:id", h.deleteProject)
	e.GET("/api/projects/:id/tasks", h.projectTasks)
	e.GET("/api/projects/:id/members", h.projectMembers)
	e.PUT("/api/projects/:id/members/:memberId", h.addProjectMember)
	e.DELETE("/api/projects/:id/members/:memberId", h.removeProjectMember)

	e.GET("/api/tasks", h.listTasks)
	e.POST("/api/tasks", h.createTask)
	e.PATCH("/api/tasks/:id", h.updateTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)

	e.GET("/api/meetings", h.listMeetings)
	e.GET("/api/meetings/:year/:week", h.getMeeting)
	e.PUT("/api/meetings/:year/:week", h.putMeeting)
	e.GET("/api/meetings/:year/:week/agenda", h.getAgenda)

	e.GET("/api/history", h.getHistory)
	e.POST("/api/archive", h.postArchive)
	e.GET("/api/export", h.getExport)
	e.POST("/api/import", h.postImport)
	return h
}

type handlers struct {
	svc    Services
	log    *log.Logger
	broker *updateBroker
}

type idResponse struct {
	ID string `json:"id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type weekResponse struct {
	Week    int    `json:"week"`
	Year    int    `json:"year"`
	WeekKey string `json:"weekKey"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func newWeekResponse(w domain.Week) weekResponse {
	start, end := w.Range()
	return weekResponse{
		Week:    w.Week,
		Year:    w.Year,
		WeekKey: w.Key(),
		Start:   start.Format("2006-01-02"),
		End:     end.Format("2006-01-02"),
	}
}

type projectCard struct {
	domain.Project
	Summary domain.ProjectSummary `json:"summary"`
}

type boardResponse struct {
	weekResponse
	Members  []domain.Member `json:"members"`
	Projects []projectCard   `json:"projects"`
	Tasks    []domain.Task   `json:"tasks"`
	Stats    domain.Stats    `json:"stats"`
}

type agendaResponse struct {
	weekResponse
	Groups map[string][]domain.Task `json:"groups"`
}

func (h *handlers) healthz(c echo.Context) error {
	if h.svc.Health != nil {
		if err := h.svc.Health(c.Request().Context()); err != nil {
			h.logError(c, err)
			return c.String(http.StatusServiceUnavailable, "unhealthy")
		}
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) getBoard(c echo.Context) error {
	w, err := h.weekFromQuery(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	board := h.svc.Board
	projects := board.ProjectsByWeek(w)
	cards := make([]projectCard, 0, len(projects))
	for _, p := range projects {
		cards = append(cards, projectCard{Project: p, Summary: board.ProjectSummary(p.ID)})
	}
	tasks := board.TasksByWeek(w)
	return c.JSON(http.StatusOK, boardResponse{
		weekResponse: newWeekResponse(w),
		Members:      board.Members(),
		Projects:     cards,
		Tasks:        tasks,
		Stats:        domain.ComputeStats(tasks),
	})
}

func (h *handlers) getWeek(c echo.Context) error {
	return c.JSON(http.StatusOK, newWeekResponse(h.svc.Board.CurrentWeek()))
}

type weekRequest struct {
	Week int `json:"week"`
	Year int `json:"year"`
}

func (h *handlers) putWeek(c echo.Context) error {
	var req weekRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Board.SetCurrentWeek(c.Request().Context(), req.Week, req.Year); err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.JSON(http.StatusOK, newWeekResponse(h.svc.Board.CurrentWeek()))
}

func (h *handlers) getStats(c echo.Context) error {
	w, err := h.weekFromQuery(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.Board.Stats(w))
}

type memberRequest struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Color string `json:"color"`
}

type memberPatch struct {
	Name  *string `json:"name"`
	Role  *string `json:"role"`
	Color *string `json:"color"`
}

func (h *handlers) listMembers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Board.Members())
}

func (h *handlers) getMember(c echo.Context) error {
	m, ok := h.svc.Board.Member(c.Param("id"))
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *handlers) createMember(c echo.Context) error {
	var req memberRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.String(http.StatusBadRequest, "name is required")
	}
	id, err := h.svc.Board.AddMember(c.Request().Context(), domain.MemberInput{
		Name:  strings.TrimSpace(req.Name),
		Role:  strings.TrimSpace(req.Role),
		Color: req.Color,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.JSON(http.StatusCreated, idResponse{ID: id})
}

func (h *handlers) updateMember(c echo.Context) error {
	var req memberPatch
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	err := h.svc.Board.UpdateMember(c.Request().Context(), c.Param("id"), domain.MemberChanges{
		Name:  req.Name,
		Role:  req.Role,
		Color: req.Color,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) deleteMember(c echo.Context) error {
	if !confirmed(c) {
		return askConfirmation(c, confirmDeleteMember)
	}
	if err := h.svc.Board.DeleteMember(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.NoContent(http.StatusNoContent)
}

type projectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

type projectPatch struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Members     *[]string `json:"members"`
}

func (h *handlers) listProjects(c echo.Context) error {
	if c.QueryParam("week") == "" && c.QueryParam("year") == "" {
		return c.JSON(http.StatusOK, h.svc.Board.Projects())
	}
	w, err := h.weekFromQuery(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.Board.ProjectsByWeek(w))
}

func (h *handlers) getProject(c echo.Context) error {
	p, ok := h.svc.Board.Project(c.Param("id"))
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, projectCard{Project: p, Summary: h.svc.Board.ProjectSummary(p.ID)})
}

func (h *handlers) createProject(c echo.Context) error {
	var req projectRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.String(http.StatusBadRequest, "name is required")
	}
	id, err := h.svc.Board.AddProject(c.Request().Context(), domain.ProjectInput{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Members:     req.Members,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.JSON(http.StatusCreated, idResponse{ID: id})
}

func (h *handlers) updateProject(c echo.Context) error {
	var req projectPatch
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	err := h.svc.Board.UpdateProject(c.Request().Context(), c.Param("id"), domain.ProjectChanges{
		Name:        req.Name,
		Description: req.Description,
		Members:     req.Members,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) deleteProject(c echo.Context) error {
	if !confirmed(c) {
		return askConfirmation(c, confirmDeleteProject)
	}
	if err := h.svc.Board.DeleteProject(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) projectTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Board.TasksByProject(c.Param("id")))
}

func (h *handlers) projectMembers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Board.ProjectMembers(c.Param("id")))
}

func (h *handlers) addProjectMember(c echo.Context) error {
	if err := h.svc.Board.AddProjectMember(c.Request().Context(), c.Param("id"), c.Param("memberId")); err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) removeProjectMember(c echo.Context) error {
	if err := h.svc.Board.RemoveProjectMember(c.Request().Context(), c.Param("id"), c.Param("memberId")); err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.NoContent(http.StatusNoContent)
}

// taskRequest keeps assignee and progress raw: a null assignee unassigns and
// progress accepts numbers and numeric strings.
type taskRequest struct {
	ProjectID   *string                `json:"projectId"`
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Assignee    sonic.NoCopyRawMessage `json:"assignee"`
	Status      *domain.Status         `json:"status"`
	Priority    *domain.Priority       `json:"priority"`
	Progress    sonic.NoCopyRawMessage `json:"progress"`
}

func (r taskRequest) changes() (domain.TaskChanges, error) {
	assignee, err := parseAssignee(r.Assignee)
	if err != nil {
		return domain.TaskChanges{}, err
	}
	progress, err := parseProgress(r.Progress)
	if err != nil {
		return domain.TaskChanges{}, err
	}
	return domain.TaskChanges{
		ProjectID:   r.ProjectID,
		Name:        r.Name,
		Description: r.Description,
		Assignee:    assignee,
		Status:      r.Status,
		Priority:    r.Priority,
		Progress:    progress,
	}, nil
}

func parseAssignee(raw sonic.NoCopyRawMessage) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v *string
	if err := sonic.ConfigStd.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid assignee")
	}
	if v == nil {
		unassigned := ""
		return &unassigned, nil
	}
	return v, nil
}

func parseProgress(raw sonic.NoCopyRawMessage) (*int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := sonic.ConfigStd.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid progress")
	}
	p := domain.ParseProgress(v)
	return &p, nil
}

func (h *handlers) listTasks(c echo.Context) error {
	board := h.svc.Board
	switch {
	case c.QueryParam("project") != "":
		return c.JSON(http.StatusOK, board.TasksByProject(c.QueryParam("project")))
	case c.QueryParam("member") != "":
		return c.JSON(http.StatusOK, board.TasksByMember(c.QueryParam("member")))
	case c.QueryParam("week") != "" || c.QueryParam("year") != "":
		w, err := h.weekFromQuery(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, board.TasksByWeek(w))
	}
	return c.JSON(http.StatusOK, board.Tasks())
}

func (h *handlers) createTask(c echo.Context) error {
	var req taskRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return c.String(http.StatusBadRequest, "name is required")
	}
	if req.ProjectID == nil || *req.ProjectID == "" {
		return c.String(http.StatusBadRequest, "projectId is required")
	}
	ch, err := req.changes()
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	in := domain.TaskInput{
		ProjectID: *req.ProjectID,
		Name:      strings.TrimSpace(*req.Name),
		Progress:  ch.Progress,
	}
	if ch.Description != nil {
		in.Description = *ch.Description
	}
	if ch.Assignee != nil {
		in.Assignee = *ch.Assignee
	}
	if ch.Status != nil {
		in.Status = *ch.Status
	}
	if ch.Priority != nil {
		in.Priority = *ch.Priority
	}
	id, err := h.svc.Board.AddTask(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.JSON(http.StatusCreated, idResponse{ID: id})
}

func (h *handlers) updateTask(c echo.Context) error {
	var req taskRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	ch, err := req.changes()
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Board.UpdateTask(c.Request().Context(), c.Param("id"), ch); err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	if task, ok := h.svc.Board.Task(c.Param("id")); ok {
		return c.JSON(http.StatusOK, task)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) deleteTask(c echo.Context) error {
	if !confirmed(c) {
		return askConfirmation(c, confirmDeleteTask)
	}
	if err := h.svc.Board.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.NoContent(http.StatusNoContent)
}

type meetingRequest struct {
	Date      string   `json:"date"`
	Notes     string   `json:"notes"`
	Attendees []string `json:"attendees"`
}

func (h *handlers) listMeetings(c echo.Context) error {
	meetings, err := h.svc.Meetings.Meetings(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, meetings)
}

func (h *handlers) getMeeting(c echo.Context) error {
	w, err := weekFromPath(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Meetings.Meeting(c.Request().Context(), w)
	if err != nil {
		return h.fail(c, err)
	}
	if m == nil {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *handlers) putMeeting(c echo.Context) error {
	w, err := weekFromPath(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	var req meetingRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			return c.String(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
	}
	m, err := h.svc.Meetings.SaveMeeting(c.Request().Context(), w, domain.MeetingInput{
		Date:      req.Date,
		Notes:     req.Notes,
		Attendees: req.Attendees,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.BoardChanged)
	return c.JSON(http.StatusOK, m)
}

func (h *handlers) getAgenda(c echo.Context) error {
	w, err := weekFromPath(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, agendaResponse{
		weekResponse: newWeekResponse(w),
		Groups:       h.svc.Board.ActiveTasksByAssignee(w),
	})
}

func (h *handlers) getHistory(c echo.Context) error {
	history, err := h.svc.Archive.History(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

func (h *handlers) postArchive(c echo.Context) error {
	if !confirmed(c) {
		return askConfirmation(c, confirmArchive)
	}
	entry, err := h.svc.Archive.ArchiveCurrentWeek(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	h.changed(domain.WeekArchived)
	return c.JSON(http.StatusOK, entry)
}

func (h *handlers) getExport(c echo.Context) error {
	data, err := h.svc.Backups.Export(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", tracker.BackupFilename(time.Now())))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, data)
}

func (h *handlers) postImport(c echo.Context) error {
	if h.svc.Board.HasData() && !confirmed(c) {
		return askConfirmation(c, confirmImport)
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportSize+1))
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if len(raw) > maxImportSize {
		return c.String(http.StatusRequestEntityTooLarge, "backup too large")
	}
	if !h.svc.Backups.Import(c.Request().Context(), raw) {
		return c.String(http.StatusBadRequest, "invalid backup")
	}
	h.changed(domain.DataImported)
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) changed(kind string) {
	h.broker.notify(changeEvent{Type: kind, WeekKey: h.svc.Board.CurrentWeek().Key()})
}

// fail maps store errors onto responses. Invalid weeks are the caller's fault;
// everything else is a backend failure.
func (h *handlers) fail(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrInvalidWeek) {
		return c.String(http.StatusBadRequest, err.Error())
	}
	h.logError(c, err)
	return c.String(http.StatusInternalServerError, "internal error")
}

func (h *handlers) logError(c echo.Context, err error) {
	if h.log == nil {
		return
	}
	h.log.WithError(err).WithFields(log.Fields{
		"route":  c.Path(),
		"method": c.Request().Method,
	}).Error("request failed")
}

func confirmed(c echo.Context) bool {
	ok, _ := strconv.ParseBool(c.QueryParam("confirm"))
	return ok
}

func askConfirmation(c echo.Context, message string) error {
	return c.JSON(http.StatusPreconditionRequired, messageResponse{Message: message})
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

// weekFromQuery reads ?weekKey= or ?week=&year=, defaulting to the
// current-week pointer when none are present.
func (h *handlers) weekFromQuery(c echo.Context) (domain.Week, error) {
	if key := c.QueryParam("weekKey"); key != "" {
		return domain.ParseWeekKey(key)
	}
	ws, ys := c.QueryParam("week"), c.QueryParam("year")
	if ws == "" && ys == "" {
		return h.svc.Board.CurrentWeek(), nil
	}
	return parseWeek(ws, ys)
}

// weekFromPath reads /:year/:week and moves it by ?offset= weeks, so the
// meeting view can page without touching the current-week pointer.
func weekFromPath(c echo.Context) (domain.Week, error) {
	w, err := parseWeek(c.Param("week"), c.Param("year"))
	if err != nil {
		return domain.Week{}, err
	}
	raw := c.QueryParam("offset")
	if raw == "" {
		return w, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < -maxWeekOffset || offset > maxWeekOffset {
		return domain.Week{}, fmt.Errorf("%w: offset %q", domain.ErrInvalidWeek, raw)
	}
	for ; offset > 0; offset-- {
		w = w.Next()
	}
	for ; offset < 0; offset++ {
		w = w.Prev()
	}
	return w, nil
}

func parseWeek(ws, ys string) (domain.Week, error) {
	week, err := strconv.Atoi(ws)
	if err != nil {
		return domain.Week{}, fmt.Errorf("%w: week %q", domain.ErrInvalidWeek, ws)
	}
	year, err := strconv.Atoi(ys)
	if err != nil {
		return domain.Week{}, fmt.Errorf("%w: year %q", domain.ErrInvalidWeek, ys)
	}
	w := domain.Week{Week: week, Year: year}
	if err := w.Validate(); err != nil {
		return domain.Week{}, err
	}
	return w, nil
}
