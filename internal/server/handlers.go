package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
	"github.com/jlescarlan11/project-krawl-sub003/internal/krawl"
	"github.com/jlescarlan11/project-krawl-sub003/internal/stopcard"
	"github.com/jlescarlan11/project-krawl-sub003/internal/trail"
)

type StopRequest struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	CreatorNote  string  `json:"creator_note"`
	LokalSecret  string  `json:"lokal_secret"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusM      float64 `json:"radius_m"`
}

type StartSessionRequest struct {
	SessionID string        `json:"session_id"`
	Stops     []StopRequest `json:"stops"`
}

type FixRequest struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	AccuracyM   float64 `json:"accuracy_m"`
	TimestampMs int64   `json:"timestamp_ms"`
}

type SessionResponse struct {
	SessionID           string                      `json:"session_id"`
	Stops               []krawl.Stop                `json:"stops"`
	Progress            map[string]krawl.StopStatus `json:"progress"`
	Card                stopcard.State              `json:"card"`
	Next                *krawl.NextStopPayload      `json:"next,omitempty"`
	Route               *krawl.RouteMetrics         `json:"route,omitempty"`
	TotalDistanceMeters float64                     `json:"total_distance_meters"`
}

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/sessions", func(c *fiber.Ctx) error {
		var req StartSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if len(req.Stops) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "at least one stop required")
		}

		stops := make([]krawl.Stop, len(req.Stops))
		for i, sr := range req.Stops {
			if sr.ID == "" {
				return fiber.NewError(fiber.StatusBadRequest, "stop id required")
			}
			if err := validateLatLng(sr.Latitude, sr.Longitude); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			stops[i] = krawl.Stop{
				ID:           sr.ID,
				Name:         sr.Name,
				Category:     sr.Category,
				CreatorNote:  sr.CreatorNote,
				LokalSecret:  sr.LokalSecret,
				ThumbnailURL: sr.ThumbnailURL,
				Coordinates:  geo.FromLngLat(sr.Longitude, sr.Latitude),
				RadiusM:      sr.RadiusM,
			}
		}

		sess, err := svc.StartSession(c.Context(), req.SessionID, stops)
		if errors.Is(err, krawl.ErrSessionExists) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(sessionResponse(sess))
	})

	r.Get("/sessions/:id", func(c *fiber.Ctx) error {
		sess, err := svc.Session(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(sessionResponse(sess))
	})

	r.Delete("/sessions/:id", func(c *fiber.Ctx) error {
		stats, err := svc.EndSession(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(stats)
	})

	r.Post("/sessions/:id/fixes", func(c *fiber.Ctx) error {
		var req FixRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validateLatLng(req.Latitude, req.Longitude); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		err := svc.PushFix(c.Params("id"), geo.Fix{
			Latitude:    req.Latitude,
			Longitude:   req.Longitude,
			AccuracyM:   req.AccuracyM,
			TimestampMs: req.TimestampMs,
		})
		if errors.Is(err, ErrUnknownSession) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if errors.Is(err, ErrPushNotSupported) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/sessions/:id/next", func(c *fiber.Ctx) error {
		sess, err := svc.Session(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		est := sess.NextEstimate()
		if est == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(est)
	})

	r.Post("/sessions/:id/stops/:stopID/checkoff", func(c *fiber.Ctx) error {
		return resolveStop(c, svc, krawl.StopVisited)
	})

	r.Post("/sessions/:id/stops/:stopID/skip", func(c *fiber.Ctx) error {
		return resolveStop(c, svc, krawl.StopSkipped)
	})

	r.Post("/sessions/:id/card/dismiss", func(c *fiber.Ctx) error {
		sess, err := svc.Session(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		sess.DismissCard()
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/sessions/:id/trail", func(c *fiber.Ctx) error {
		sess, err := svc.Session(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		samples, err := sess.Trail(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if samples == nil {
			samples = []trail.Sample{}
		}
		return c.JSON(samples)
	})
}

func resolveStop(c *fiber.Ctx, svc *Service, status krawl.StopStatus) error {
	sess, err := svc.Session(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	// c.Params returns a view into fasthttp's reused request buffer; copy it
	// before it escapes into the session's retained state.
	stopID := utils.CopyString(c.Params("stopID"))
	if status == krawl.StopVisited {
		err = sess.CheckOff(stopID)
	} else {
		err = sess.Skip(stopID)
	}
	if errors.Is(err, krawl.ErrUnknownStop) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.JSON(fiber.Map{"stop_id": stopID, "status": status})
}

func sessionResponse(sess *krawl.Session) SessionResponse {
	return SessionResponse{
		SessionID:           sess.ID(),
		Stops:               sess.Stops(),
		Progress:            sess.Progress(),
		Card:                sess.CardState(),
		Next:                sess.NextEstimate(),
		Route:               sess.RouteMetrics(),
		TotalDistanceMeters: sess.TotalDistanceMeters(),
	}
}

func validateLatLng(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lng)
	}
	return nil
}
