// Package api exposes the room CRUD surface over HTTP. It reads and
// writes the room registry only; connection state is never touched here.
package api

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/roomcast/server/src/room"
)

type handler struct {
	rooms  *room.Registry
	logger zerolog.Logger
}

// Register mounts the room API under /api.
func Register(app *fiber.App, rooms *room.Registry, logger zerolog.Logger) {
	h := &handler{
		rooms:  rooms,
		logger: logger.With().Str("component", "api").Logger(),
	}

	grp := app.Group("/api")
	grp.Get("/hello", h.hello)
	grp.Get("/room", h.room)
	grp.Get("/roomList", h.roomList)
	grp.Get("/msgList", h.msgList)
	grp.Post("/roomCreate", h.roomCreate)
	grp.Post("/roomDelete", h.roomDelete)
}

func (h *handler) hello(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"hello": "world"})
}

func (h *handler) room(c fiber.Ctx) error {
	roomID, err := strconv.Atoi(c.Query("roomId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "roomId required"})
	}
	snap, ok := h.rooms.Get(roomID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	return c.JSON(snap)
}

func (h *handler) roomList(c fiber.Ctx) error {
	return c.JSON(h.rooms.List())
}

func (h *handler) msgList(c fiber.Ctx) error {
	roomID, err := strconv.Atoi(c.Query("roomId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "roomId required"})
	}
	fromMsgID, _ := strconv.Atoi(c.Query("msgId", "0"))
	return c.JSON(h.rooms.MessagesSince(roomID, fromMsgID))
}

func (h *handler) roomCreate(c fiber.Ctx) error {
	var body struct {
		RoomName string `json:"roomName"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	snap := h.rooms.Create(body.RoomName)
	h.logger.Info().Int("room_id", snap.RoomID).Str("name", snap.RoomName).Msg("room created via api")
	return c.JSON(snap)
}

func (h *handler) roomDelete(c fiber.Ctx) error {
	var body struct {
		RoomID int `json:"roomId"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	h.rooms.Delete(body.RoomID)
	return c.JSON(fiber.Map{})
}
