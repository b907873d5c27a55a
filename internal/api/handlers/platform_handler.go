package handlers

import (
	"fmt"
	"log"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/tokens"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type PlatformHandler struct {
	ps  service.PlatformService
	tw  service.TwitterService
	li  service.LinkedinService
	ig  service.InstagramService
	tm  *tokens.Manager
	cfg *config.Config
}

func NewPlatformHandler(
	ps service.PlatformService,
	tw service.TwitterService,
	li service.LinkedinService,
	ig service.InstagramService,
	tm *tokens.Manager,
	cfg *config.Config) *PlatformHandler {
	return &PlatformHandler{
		ps:  ps,
		tw:  tw,
		li:  li,
		ig:  ig,
		tm:  tm,
		cfg: cfg,
	}
}

func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	authURL := h.ps.GetAuthURL(c.Context(), c.Params("platform"), c.Query("state"))
	if authURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown platform",
		})
	}
	return c.Redirect(authURL)
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	platformName := c.Params("platform")

	claims, err := utils.ValidateToken(h.cfg.SecretKey, state)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	switch platformName {
	case platform.Twitter:
		err = h.tw.TwitterCallback(c.Context(), code, userID)
	case platform.Linkedin:
		err = h.li.LinkedinCallback(c.Context(), code, userID)
	case platform.Instagram:
		err = h.ig.InstagramCallback(c.Context(), code, userID)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown platform",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.ps.List(c.Context(), userID)
	if err != nil {
		log.Println(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

// ValidateSocialAccounts reports which of the user's accounts hold a usable
// token, refreshing where possible, so the frontend can prompt reconnection
// before a scheduled post fails.
func (h *PlatformHandler) ValidateSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	states, err := h.tm.ValidateAccounts(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to validate social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"valid":              states.Valid,
		"invalid":            states.Invalid,
		"needs_reconnection": states.NeedsReconnection,
	})
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)

	err := h.ps.Delete(c.Context(), userID, int64(accountID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to delete social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
