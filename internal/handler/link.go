package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/arcadara/portal/internal/auth"
	"github.com/arcadara/portal/internal/middleware"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/queue"
	queue_publisher "github.com/arcadara/portal/internal/service"
	"github.com/arcadara/portal/internal/store"
)

// LinkHandler exposes the versioned link aggregate and the link/unlink
// mutations.
type LinkHandler struct {
	Links store.LinkStore
}

func NewLinkHandler(links store.LinkStore) *LinkHandler {
	return &LinkHandler{Links: links}
}

type linkReq struct {
	Family   string `json:"family"`
	Server   string `json:"server"`
	RemoteID string `json:"remote_id"`
}

func (r linkReq) ref() model.RemoteRef {
	return model.RemoteRef{
		Family:   model.ProviderFamily(r.Family),
		Server:   model.Server(r.Server),
		RemoteID: r.RemoteID,
	}
}

// actingUser decides whether the authenticated subject may mutate
// links of target, and under which acting-user id the mutation is
// recorded. Users act on themselves; administrators and the system
// context act on anyone. The switch is exhaustive over the sealed
// variant set.
func actingUser(acx auth.Context, target uint64) (uint64, bool) {
	switch v := acx.(type) {
	case auth.User:
		if v.UserID == target || v.IsAdministrator {
			return v.UserID, true
		}
		return 0, false
	case auth.System:
		return target, true
	case auth.Guest, auth.Client, auth.AccessToken:
		return 0, false
	default:
		return 0, false
	}
}

func targetUserID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

// GetUserLinks returns the versioned aggregate for every provider
// family and server variant, keyed by server. Reading links requires
// no privilege: the portal's profile pages are public.
func (h *LinkHandler) GetUserLinks(c echo.Context) error {
	userID, err := targetUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	out := echo.Map{}
	for _, family := range model.Families() {
		for _, server := range model.ServersOf(family) {
			vl, err := h.Links.GetLink(ctx, userID, model.RemoteRef{Family: family, Server: server})
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
			}
			out[string(server)] = vl
		}
	}
	return c.JSON(http.StatusOK, out)
}

// GetUserLink returns one versioned aggregate. An un-linked pair is a
// 200 with current=null, never a 404.
func (h *LinkHandler) GetUserLink(c echo.Context) error {
	userID, err := targetUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	ref := model.RemoteRef{
		Family: model.ProviderFamily(c.Param("family")),
		Server: model.Server(c.Param("server")),
	}
	found := false
	for _, s := range model.ServersOf(ref.Family) {
		if s == ref.Server {
			found = true
			break
		}
	}
	if !found {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown provider"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	vl, err := h.Links.GetLink(ctx, userID, ref)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, vl)
}

// CreateLink attaches a remote account to the target user.
func (h *LinkHandler) CreateLink(c echo.Context) error {
	userID, err := targetUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	actorID, ok := actingUser(middleware.AuthFrom(c), userID)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req linkReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ref := req.ref()
	if err := ref.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	link, err := h.Links.Link(ctx, userID, ref, actorID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyLinked) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already linked"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "link failed"})
	}
	// Best-effort audit trail; the link has already committed.
	_ = queue_publisher.PublishLinkEvent(ctx, queue.NewLinkEvent(queue.EventLinked, userID, ref, link.Linked))

	return c.JSON(http.StatusCreated, link)
}

// DeleteLink closes the active link, preserving it as history.
func (h *LinkHandler) DeleteLink(c echo.Context) error {
	userID, err := targetUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	actorID, ok := actingUser(middleware.AuthFrom(c), userID)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req linkReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ref := req.ref()
	if err := ref.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	old, err := h.Links.Unlink(ctx, userID, ref, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotLinked) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not linked"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unlink failed"})
	}
	_ = queue_publisher.PublishLinkEvent(ctx, queue.NewLinkEvent(queue.EventUnlinked, userID, ref, old.Unlinked))

	return c.JSON(http.StatusOK, old)
}
