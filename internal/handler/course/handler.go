package course

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/course"
	"github.com/zhouzirui/euonia-ta/backend/pkg/utils"
)

// Handler 课程信息的HTTP处理器
type Handler struct {
	courses course.Store
	logger  *zap.Logger
}

// New 创建课程处理器
func New(courses course.Store, logger *zap.Logger) *Handler {
	return &Handler{courses: courses, logger: logging.OrNop(logger).Named("course-handler")}
}

// RegisterRoutes 注册课程相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/course", h.handleGetCourse)
	r.Get("/courses", h.handleListCourses)
	r.Get("/courses/{courseID}", h.handleFindCourse)
}

// handleGetCourse 返回侧边栏展示的课程信息
func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, h.logger, http.StatusOK, h.courses.Default())
}

// handleListCourses 返回所有已加载的课程
func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, h.logger, http.StatusOK, map[string]any{"courses": h.courses.List()})
}

func (h *Handler) handleFindCourse(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.courses.FindByID(chi.URLParam(r, "courseID"))
	if !ok {
		utils.RespondError(w, h.logger, http.StatusNotFound, "course not found")
		return
	}
	utils.RespondJSON(w, h.logger, http.StatusOK, profile)
}
