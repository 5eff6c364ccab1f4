package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trackmyteam/internal/api/middleware"
	"trackmyteam/internal/model"

	"github.com/gin-gonic/gin"
)

// createTaskRequest 创建任务的请求参数。客户端传入的 status 与 owner 被忽略。
type createTaskRequest struct {
	Title       string    `json:"title" binding:"required,notblank,max=255"`
	Description string    `json:"description"`
	Deadline    *Deadline `json:"deadline"`
}

// updateTaskRequest 整体替换任务内容，未提供的描述与截止时间会被清空。
type updateTaskRequest struct {
	Title       string    `json:"title" binding:"required,notblank,max=255"`
	Description string    `json:"description"`
	Deadline    *Deadline `json:"deadline"`
	Status      string    `json:"status" binding:"required,taskstatus"`
}

type taskResponse struct {
	ID            uint             `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Deadline      *time.Time       `json:"deadline"`
	Status        model.TaskStatus `json:"status"`
	OwnerID       uint             `json:"owner_id"`
	OwnerUsername string           `json:"owner_username,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Deadline:      t.Deadline,
		Status:        t.Status,
		OwnerID:       t.UserID,
		OwnerUsername: t.User.Username,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// identityHandler 是显式接收调用方身份的处理函数。
type identityHandler func(c *gin.Context, identity model.Identity)

// withIdentity 从上下文取出 AuthMiddleware 解析好的身份并传给处理函数。
func (s *Server) withIdentity(h identityHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.IdentityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h(c, identity)
	}
}

// handleCreateTask 为调用方创建任务，状态固定为 PENDING。
func (s *Server) handleCreateTask(c *gin.Context, identity model.Identity) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := model.Task{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Deadline:    req.Deadline.ptr(),
		Status:      model.StatusPending,
		UserID:      identity.UserID,
	}
	if err := s.taskStore.Create(c.Request.Context(), &task); err != nil {
		s.respondError(c, err)
		return
	}
	task.User = model.User{ID: identity.UserID, Username: identity.Username}

	c.JSON(http.StatusCreated, toTaskResponse(&task))
}

// handleListMyTasks 返回调用方自己的任务。
func (s *Server) handleListMyTasks(c *gin.Context, identity model.Identity) {
	tasks, err := s.taskStore.ListByOwner(c.Request.Context(), identity.UserID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, toTaskResponse(&tasks[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetTask(c *gin.Context, identity model.Identity) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}
	task, err := s.loadOwnedTask(c.Request.Context(), identity, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(task))
}

// handleUpdateTask 整体替换标题、描述、截止时间与状态，归属不变。
func (s *Server) handleUpdateTask(c *gin.Context, identity model.Identity) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	task, err := s.loadOwnedTask(ctx, identity, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	task.Title = strings.TrimSpace(req.Title)
	task.Description = req.Description
	task.Deadline = req.Deadline.ptr()
	task.Status = model.TaskStatus(req.Status)
	if err := s.taskStore.Save(ctx, task); err != nil {
		s.respondError(c, err)
		return
	}

	updated, err := s.taskStore.FindByID(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(updated))
}

// handleDeleteTask 删除任务，任务不存在或不属于调用方时返回 404。
func (s *Server) handleDeleteTask(c *gin.Context, identity model.Identity) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := s.loadOwnedTask(ctx, identity, id); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.taskStore.Delete(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// loadOwnedTask 读取调用方可以修改的任务。
//
// 他人的任务按不存在处理，不泄露任务是否存在；管理员可以操作任意任务。
func (s *Server) loadOwnedTask(ctx context.Context, identity model.Identity, id uint) (*model.Task, error) {
	task, err := s.taskStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != identity.UserID && !identity.IsAdmin() {
		return nil, model.ErrNotFound
	}
	return task, nil
}

func parseTaskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return uint(id), true
}
