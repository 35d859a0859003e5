package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/C4T-BuT-S4D/invitegate/internal/config"
	"github.com/C4T-BuT-S4D/invitegate/internal/referral"
	"github.com/C4T-BuT-S4D/invitegate/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type Service struct {
	config  *config.Config
	storage *storage.Storage
}

func NewService(cfg *config.Config, storage *storage.Storage) *Service {
	return &Service{
		config:  cfg,
		storage: storage,
	}
}

func (s *Service) Register(e *echo.Echo) {
	e.GET("/healthz", s.HandleHealth())
	e.GET("/users/:id", s.HandleUserStatus())
	e.GET("/leaderboard", s.HandleLeaderboard())
}

type userStatusResponse struct {
	UserID           int64  `json:"user_id"`
	Username         string `json:"username"`
	InvitedCount     int    `json:"invited_count"`
	ChannelsFollowed bool   `json:"channels_followed"`
	ReferrerID       *int64 `json:"referrer_id"`
	Unlocked         bool   `json:"unlocked"`
	State            string `json:"state"`
	Remaining        int    `json:"remaining"`
}

type leaderboardEntry struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	InvitedCount int    `json:"invited_count"`
	Unlocked     bool   `json:"unlocked"`
}

func (s *Service) HandleHealth() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := s.storage.Ping(ctx); err != nil {
			logrus.Errorf("health check failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}

		count, err := s.storage.CountUsers(ctx)
		if err != nil {
			logrus.Errorf("failed to count users: %v", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}

		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "users": count})
	}
}

func (s *Service) HandleUserStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "id must be an integer"})
		}

		user, err := s.storage.GetStatus(c.Request().Context(), userID)
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		if err != nil {
			logrus.Errorf("failed to get user %d: %v", userID, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get user"})
		}

		return c.JSON(http.StatusOK, userStatusResponse{
			UserID:           user.UserID,
			Username:         user.Username,
			InvitedCount:     user.InvitedCount,
			ChannelsFollowed: user.ChannelsFollowed,
			ReferrerID:       user.ReferrerID,
			Unlocked:         user.Unlocked,
			State:            referral.StateOf(user).String(),
			Remaining:        referral.ProgressOf(user, s.config.RequiredInvites).Remaining(),
		})
	}
}

func (s *Service) HandleLeaderboard() echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := defaultLeaderboardLimit
		if raw := c.QueryParam("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be a positive integer"})
			}
			limit = min(parsed, maxLeaderboardLimit)
		}

		users, err := s.storage.TopReferrers(c.Request().Context(), limit)
		if err != nil {
			logrus.Errorf("failed to get leaderboard: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get leaderboard"})
		}

		result := make([]leaderboardEntry, 0, len(users))
		for _, user := range users {
			result = append(result, leaderboardEntry{
				UserID:       user.UserID,
				Username:     user.Username,
				InvitedCount: user.InvitedCount,
				Unlocked:     user.Unlocked,
			})
		}

		return c.JSON(http.StatusOK, result)
	}
}
