// Package memories serves the welcome page, the memory list and the
// create/edit/delete pages.
package memories

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/config"
	"github.com/chirino/memory-journal/internal/form"
	"github.com/chirino/memory-journal/internal/model"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
	"github.com/chirino/memory-journal/internal/web"
	"github.com/gin-gonic/gin"
)

// ListPath is the memory list page every write redirects to.
const ListPath = "/memory/list/"

type handler struct {
	store  registrystore.MemoryStore
	binder *form.Binder
	cfg    *config.Config
}

// formView is the form state handed to create_memory.html.
type formView struct {
	Values form.Input  `json:"values"`
	Errors form.Errors `json:"errors"`
}

// MountRoutes mounts the page routes behind session and the not-found handler.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, cfg *config.Config, session gin.HandlerFunc) {
	h := &handler{store: store, binder: form.NewBinder(store), cfg: cfg}

	pages := r.Group("/", session, security.CSRFMiddleware())
	pages.GET("/", h.welcome)

	g := pages.Group("/memory", security.RequireLogin())
	g.GET("/list/", h.list)
	g.GET("/create/", h.createForm)
	g.POST("/create/", h.create)
	g.GET("/edit/:id/", h.editForm)
	g.POST("/edit/:id/", h.edit)
	g.GET("/delete/:id/", h.delete)

	r.NoRoute(session, web.NotFound)
}

func (h *handler) welcome(c *gin.Context) {
	data := gin.H{"title": "Welcome"}
	if security.GetUserID(c) != 0 {
		data = web.PageData(c, h.store, data)
	}
	web.Render(c, http.StatusOK, web.TemplateWelcome, data)
}

func (h *handler) list(c *gin.Context) {
	userID := security.GetUserID(c)
	memories, err := h.store.ListMemories(c.Request.Context(), userID)
	if err != nil {
		web.ServerError(c, err)
		return
	}
	summaries := make([]model.Summary, 0, len(memories))
	for i := range memories {
		summaries = append(summaries, memories[i].Summary())
	}
	web.Render(c, http.StatusOK, web.TemplateListMemory, web.PageData(c, h.store, gin.H{
		"title":    "My memories",
		"memories": summaries,
	}))
}

func (h *handler) renderForm(c *gin.Context, action string, memoryID uint, view formView) {
	data := gin.H{
		"title":  "New memory",
		"action": action,
		"form":   view,
	}
	if action == "edit" {
		data["title"] = fmt.Sprintf("Edit memory #%d", memoryID)
		data["memory_id"] = memoryID
	}
	web.Render(c, http.StatusOK, web.TemplateCreateMemory, web.PageData(c, h.store, data))
}

func (h *handler) createForm(c *gin.Context) {
	h.renderForm(c, "create", 0, formView{Values: form.Input{
		User:     strconv.FormatUint(uint64(security.GetUserID(c)), 10),
		Location: h.cfg.ResolvedDefaultLocation(),
	}})
}

func (h *handler) create(c *gin.Context) {
	userID := security.GetUserID(c)
	in, ok := postedInput(c)
	if !ok {
		return
	}

	m, err := h.binder.Bind(c.Request.Context(), userID, in, nil)
	if err == nil {
		err = h.store.CreateMemory(c.Request.Context(), userID, m)
	}
	if err != nil {
		h.rejected(c, "create", 0, in, err)
		return
	}

	security.RecordMemoryWrite("create", "ok")
	log.Info("Memory created", "id", m.ID, "owner", userID)
	web.Success(c, fmt.Sprintf("New memory #%d successfully created!", m.ID))
	web.Redirect(c, ListPath)
}

func (h *handler) editForm(c *gin.Context) {
	m, ok := h.resolve(c, "edit")
	if !ok {
		return
	}
	h.renderForm(c, "edit", m.ID, formView{Values: form.InputFromMemory(m)})
}

func (h *handler) edit(c *gin.Context) {
	userID := security.GetUserID(c)
	existing, ok := h.resolve(c, "edit")
	if !ok {
		return
	}
	in, ok := postedInput(c)
	if !ok {
		return
	}

	m, err := h.binder.Bind(c.Request.Context(), userID, in, existing)
	if err == nil {
		err = h.store.UpdateMemory(c.Request.Context(), userID, m)
	}
	if err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			h.notFound(c, "edit", existing.ID)
			return
		}
		h.rejected(c, "edit", existing.ID, in, err)
		return
	}

	security.RecordMemoryWrite("edit", "ok")
	log.Info("Memory changed", "id", m.ID, "owner", userID)
	web.Success(c, fmt.Sprintf("Memory #%d successfully changed!", m.ID))
	web.Redirect(c, ListPath)
}

func (h *handler) delete(c *gin.Context) {
	userID := security.GetUserID(c)
	memoryID, ok := memoryIDParam(c)
	if !ok {
		return
	}
	err := h.store.DeleteMemory(c.Request.Context(), userID, memoryID)
	if err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			h.notFound(c, "delete", memoryID)
			return
		}
		security.RecordMemoryWrite("delete", "error")
		web.ServerError(c, err)
		return
	}

	security.RecordMemoryWrite("delete", "ok")
	log.Info("Memory deleted", "id", memoryID, "owner", userID)
	web.Success(c, fmt.Sprintf("Memory #%d successfully deleted!", memoryID))
	web.Redirect(c, ListPath)
}

// resolve loads the memory named in the path for the caller. A memory that is
// missing or owned by someone else takes the same not-found path.
func (h *handler) resolve(c *gin.Context, operation string) (*model.Memory, bool) {
	memoryID, ok := memoryIDParam(c)
	if !ok {
		return nil, false
	}
	m, err := h.store.GetMemory(c.Request.Context(), security.GetUserID(c), memoryID)
	if err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			h.notFound(c, operation, memoryID)
		} else {
			web.ServerError(c, err)
		}
		return nil, false
	}
	return m, true
}

func (h *handler) notFound(c *gin.Context, operation string, memoryID uint) {
	security.RecordMemoryWrite(operation, "not_found")
	web.Error(c, fmt.Sprintf("Memory #%d does not exist!", memoryID))
	web.Redirect(c, ListPath)
}

// rejected handles a failed bind or write. Invalid input re-renders the form
// with the submission and its errors; anything else is a server error.
func (h *handler) rejected(c *gin.Context, action string, memoryID uint, in form.Input, err error) {
	var errs form.Errors
	if !errors.As(err, &errs) {
		var ok bool
		if errs, ok = form.FromWriteError(err); !ok {
			security.RecordMemoryWrite(action, "error")
			web.ServerError(c, err)
			return
		}
	}
	security.RecordMemoryWrite(action, "invalid")
	log.Debug("Memory form rejected", "action", action, "errors", errs.JSON())
	web.Error(c, errs.JSON())
	h.renderForm(c, action, memoryID, formView{Values: in, Errors: errs})
}

// memoryIDParam parses :id. Anything but a positive integer is an unknown URL.
func memoryIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		web.NotFound(c)
		return 0, false
	}
	return uint(id), true
}

func postedInput(c *gin.Context) (form.Input, bool) {
	if err := c.Request.ParseForm(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form submission"})
		return form.Input{}, false
	}
	return form.InputFromValues(c.Request.PostForm), true
}
