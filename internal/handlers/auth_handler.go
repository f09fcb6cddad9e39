package handlers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CalibrateBack/internal/identity"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/services"
	"github.com/saeid-a/CalibrateBack/pkg/utils"
	"go.uber.org/zap"
)

type signInService interface {
	SignIn(ctx context.Context, identity services.Identity) (*models.User, error)
	Me(ctx context.Context, actor services.Actor) (*models.User, error)
}

type AuthHandler struct {
	users        signInService
	provider     identity.Provider
	state        *identity.StateCodec
	jwtSecret    string
	frontendURL  string
	secureCookie bool
	log          *zap.Logger
}

type AuthOptions struct {
	JWTSecret    string
	FrontendURL  string
	SecureCookie bool
}

// NewAuthHandler builds the handler. provider may be nil when Google sign-in
// is not configured; the Google routes then answer 503.
func NewAuthHandler(
	users signInService,
	provider identity.Provider,
	state *identity.StateCodec,
	opts AuthOptions,
	log *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:        users,
		provider:     provider,
		state:        state,
		jwtSecret:    opts.JWTSecret,
		frontendURL:  opts.FrontendURL,
		secureCookie: opts.SecureCookie,
		log:          log,
	}
}

func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	if h.provider == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Google sign-in is not configured"})
	}

	state, cookieValue, err := h.state.Issue()
	if err != nil {
		h.log.Error("issue oauth state", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to start sign-in"})
	}
	h.setStateCookie(c, cookieValue, time.Now().Add(identity.StateTTL))

	return c.Redirect(h.provider.AuthCodeURL(state), fiber.StatusFound)
}

func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	if h.provider == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Google sign-in is not configured"})
	}

	cookieValue := c.Cookies(identity.StateCookieName)
	h.clearStateCookie(c)
	if err := h.state.Verify(cookieValue, c.Query("state")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sign-in state"})
	}
	if reason := c.Query("error"); reason != "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Sign-in cancelled"})
	}
	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing authorization code"})
	}

	profile, err := h.provider.Exchange(c.Context(), code)
	if err != nil {
		if errors.Is(err, identity.ErrUnverifiedEmail) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"role": models.RoleUnauthorized})
		}
		h.log.Warn("google exchange failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Sign-in with Google failed"})
	}

	user, err := h.users.SignIn(c.Context(), services.Identity{
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
	})
	if err != nil {
		if errors.Is(err, services.ErrUnauthorizedUser) {
			h.log.Info("sign-in refused for unknown user", zap.String("email", profile.Email))
		}
		return mapServiceError(c, h.log, err)
	}

	token, err := utils.GenerateToken(user.Email, user.Role, h.jwtSecret)
	if err != nil {
		h.log.Error("generate token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	if h.frontendURL != "" {
		target, err := url.Parse(h.frontendURL)
		if err == nil {
			target.Fragment = url.Values{"token": {token}}.Encode()
			return c.Redirect(target.String(), fiber.StatusFound)
		}
		h.log.Warn("invalid frontend url", zap.String("url", h.frontendURL), zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	user, err := h.users.Me(c.Context(), actor)
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

// SignOut drops any pending sign-in state. Tokens are discarded client side.
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	h.clearStateCookie(c)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) setStateCookie(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     identity.StateCookieName,
		Value:    value,
		Path:     "/api/auth",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearStateCookie(c *fiber.Ctx) {
	h.setStateCookie(c, "", time.Unix(0, 0))
}
