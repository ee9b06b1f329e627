package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/http/response"
	"github.com/yungbote/dcengine/internal/platform/ctxutil"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

// InvocationRetention is how long a finished background invocation stays
// readable.
const InvocationRetention = 10 * time.Minute

type CommandHandler struct {
	log         *logger.Logger
	dispatcher  *command.Dispatcher
	registry    *command.Registry
	invocations *invocationTable
}

func NewCommandHandler(log *logger.Logger, dispatcher *command.Dispatcher, registry *command.Registry) *CommandHandler {
	return &CommandHandler{
		log:         log.With("handler", "CommandHandler"),
		dispatcher:  dispatcher,
		registry:    registry,
		invocations: newInvocationTable(InvocationRetention),
	}
}

func actorOf(c *gin.Context) uuid.UUID {
	if ad := ctxutil.GetActorData(c.Request.Context()); ad != nil {
		return ad.ActorID
	}
	return uuid.Nil
}

func body(c *gin.Context) ([]byte, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return nil, false
	}
	return raw, true
}

// RunAction handles POST /api/actions/:type. With ?async=true the action runs
// in the background and the response carries an invocation id that can be
// polled or canceled.
func (h *CommandHandler) RunAction(c *gin.Context) {
	raw, ok := body(c)
	if !ok {
		return
	}
	action := command.ActionType(c.Param("type"))
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		ctx := context.WithoutCancel(c.Request.Context())
		inv := h.dispatcher.Start(ctx, action, raw, actorOf(c))
		id := h.invocations.put(inv)
		c.JSON(http.StatusAccepted, invocationView(id, inv))
		return
	}
	response.RespondResult(c, h.dispatcher.Dispatch(c.Request.Context(), action, raw, actorOf(c)))
}

// RunQuery handles POST /api/queries/:type.
func (h *CommandHandler) RunQuery(c *gin.Context) {
	raw, ok := body(c)
	if !ok {
		return
	}
	response.RespondResult(c, h.dispatcher.Query(c.Request.Context(), command.QueryType(c.Param("type")), raw, actorOf(c)))
}

// Catalog handles GET /api/actions.
func (h *CommandHandler) Catalog(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"actions": h.registry.Actions(),
		"queries": h.registry.Queries(),
	})
}

// GetInvocation handles GET /api/invocations/:id.
func (h *CommandHandler) GetInvocation(c *gin.Context) {
	id, inv, ok := h.lookup(c)
	if !ok {
		return
	}
	response.RespondOK(c, invocationView(id, inv))
}

// CancelInvocation handles DELETE /api/invocations/:id. Once Execute has
// begun the invocation can no longer be canceled.
func (h *CommandHandler) CancelInvocation(c *gin.Context) {
	id, inv, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := inv.Cancel(); err != nil {
		if errors.Is(err, command.ErrCancelRejected) {
			response.RespondError(c, http.StatusConflict, "cancel_rejected", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	h.log.Info("invocation cancel requested", "invocation_id", id, "actor_id", actorOf(c))
	c.JSON(http.StatusAccepted, invocationView(id, inv))
}

func (h *CommandHandler) lookup(c *gin.Context) (uuid.UUID, *command.Invocation, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return uuid.Nil, nil, false
	}
	inv := h.invocations.get(id)
	if inv == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", errors.New("invocation not found"))
		return uuid.Nil, nil, false
	}
	return id, inv, true
}

type InvocationView struct {
	InvocationID uuid.UUID       `json:"invocation_id"`
	State        command.State   `json:"state"`
	Result       *command.Result `json:"result,omitempty"`
}

func invocationView(id uuid.UUID, inv *command.Invocation) InvocationView {
	v := InvocationView{InvocationID: id, State: inv.State()}
	select {
	case <-inv.Done():
		res := inv.Wait()
		v.State = res.State
		v.Result = &res
	default:
	}
	return v
}

type invocationEntry struct {
	inv      *command.Invocation
	finished time.Time
}

type invocationTable struct {
	mu        sync.Mutex
	retention time.Duration
	entries   map[uuid.UUID]*invocationEntry
}

func newInvocationTable(retention time.Duration) *invocationTable {
	return &invocationTable{retention: retention, entries: map[uuid.UUID]*invocationEntry{}}
}

func (t *invocationTable) put(inv *command.Invocation) uuid.UUID {
	id := uuid.New()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(time.Now())
	t.entries[id] = &invocationEntry{inv: inv}
	return id
}

func (t *invocationTable) get(id uuid.UUID) *command.Invocation {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		return e.inv
	}
	return nil
}

// evictLocked drops invocations that finished more than retention ago.
func (t *invocationTable) evictLocked(now time.Time) {
	for id, e := range t.entries {
		if e.finished.IsZero() {
			select {
			case <-e.inv.Done():
				e.finished = now
			default:
			}
			continue
		}
		if now.Sub(e.finished) > t.retention {
			delete(t.entries, id)
		}
	}
}
