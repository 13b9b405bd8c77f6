package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arcadara/portal/internal/middleware"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/store"
)

// UserHandler exposes canonical user profiles and display-name
// renames.
type UserHandler struct {
	Users store.UserStore
}

func NewUserHandler(users store.UserStore) *UserHandler {
	return &UserHandler{Users: users}
}

type nameChangePart struct {
	DisplayName string    `json:"display_name"`
	StartTime   time.Time `json:"start_time"`
}

type userResp struct {
	ID              uint64           `json:"id"`
	DisplayName     string           `json:"display_name"`
	IsAdministrator bool             `json:"is_administrator"`
	CreatedAt       time.Time        `json:"created_at"`
	NameHistory     []nameChangePart `json:"name_history"`
}

func userJSON(u model.User, hist []model.DisplayNameChange) userResp {
	resp := userResp{
		ID:              u.ID,
		DisplayName:     u.DisplayName,
		IsAdministrator: u.IsAdministrator,
		CreatedAt:       u.CreatedAt,
		NameHistory:     []nameChangePart{},
	}
	for _, h := range hist {
		resp.NameHistory = append(resp.NameHistory, nameChangePart{DisplayName: h.DisplayName, StartTime: h.StartTime})
	}
	return resp
}

// GetUser returns a public profile with the full display-name history.
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := targetUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.UserByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if u == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	hist, err := h.Users.DisplayNameHistory(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, userJSON(*u, hist))
}

type renameReq struct {
	DisplayName string `json:"display_name"`
}

// Rename changes a user's display name. Users rename themselves;
// administrators may rename anyone. Every rename lands in the
// append-only history.
func (h *UserHandler) Rename(c echo.Context) error {
	id, err := targetUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if _, ok := actingUser(middleware.AuthFrom(c), id); !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req renameReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "display_name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.UpdateDisplayName(ctx, id, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case errors.Is(err, store.ErrDisplayNameTaken):
			return c.JSON(http.StatusConflict, echo.Map{"error": "display name already taken"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "rename failed"})
		}
	}
	hist, err := h.Users.DisplayNameHistory(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, userJSON(u, hist))
}
