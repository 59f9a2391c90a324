package emulator

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type credentialsRequest struct {
	Email        string            `json:"email"`
	Password     string            `json:"password"`
	RefreshToken string            `json:"refresh_token"`
	Data         map[string]string `json:"data"`
}

// registerAuthRoutes wires the managed-auth surface: signup, the password
// and refresh-token grants, logout, and the current-user lookup.
func (s *Server) registerAuthRoutes(r fiber.Router) {
	r.Post("/auth/v1/signup", s.handleSignup)
	r.Post("/auth/v1/token", s.handleToken)
	r.Post("/auth/v1/logout", s.handleLogout)
	r.Get("/auth/v1/user", s.handleUser)
}

func (s *Server) handleSignup(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return authError(c, http.StatusBadRequest, "invalid request body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return authError(c, http.StatusUnprocessableEntity, "Unable to validate email address: invalid format")
	}
	if len(req.Password) < minPasswordLength {
		return authError(c, http.StatusUnprocessableEntity, "Password should be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "hash password")
	}
	account := Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  req.Data["display_name"],
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAccount(c.UserContext(), account); err != nil {
		if err == ErrDuplicate {
			return authError(c, http.StatusUnprocessableEntity, "User already registered")
		}
		return err
	}

	// New accounts start with no provider powers and an empty wallet.
	if err := s.store.UpsertCapabilities(c.UserContext(), CapabilityRow{UserID: account.ID}); err != nil {
		return err
	}
	if err := s.store.EnsureWallet(c.UserContext(), account.ID); err != nil {
		return err
	}

	s.log.Info("account registered",
		slog.String("user_id", account.ID),
		slog.String("email", account.Email),
	)
	return s.respondSession(c, account)
}

func (s *Server) handleToken(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return authError(c, http.StatusBadRequest, "invalid request body")
	}

	switch c.Query("grant_type") {
	case "password":
		account, err := s.store.AccountByEmail(c.UserContext(), req.Email)
		if err != nil {
			if err == ErrNotFound {
				return authError(c, http.StatusBadRequest, "Invalid login credentials")
			}
			return err
		}
		if bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(req.Password)) != nil {
			return authError(c, http.StatusBadRequest, "Invalid login credentials")
		}
		return s.respondSession(c, account)

	case "refresh_token":
		userID, err := s.sessions.Consume(c.UserContext(), req.RefreshToken)
		if err != nil {
			if err == ErrNotFound {
				return authError(c, http.StatusBadRequest, "Invalid Refresh Token: Refresh Token Not Found")
			}
			return err
		}
		account, err := s.store.AccountByID(c.UserContext(), userID)
		if err != nil {
			return authError(c, http.StatusBadRequest, "Invalid Refresh Token: user no longer exists")
		}
		return s.respondSession(c, account)

	default:
		return authError(c, http.StatusBadRequest, "unsupported grant type")
	}
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if _, err := s.claimsFromRequest(c); err != nil {
		return authError(c, http.StatusUnauthorized, "invalid session")
	}
	// The rotated-away refresh token is already unusable; nothing else to
	// revoke per session.
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) handleUser(c *fiber.Ctx) error {
	claims, err := s.claimsFromRequest(c)
	if err != nil {
		return authError(c, http.StatusUnauthorized, "invalid session")
	}
	account, err := s.store.AccountByID(c.UserContext(), claims.Subject)
	if err != nil {
		return authError(c, http.StatusUnauthorized, "invalid session")
	}
	return c.JSON(userJSON(account))
}

// respondSession issues a fresh token pair for the account and writes the
// session payload the client expects.
func (s *Server) respondSession(c *fiber.Ctx, account Account) error {
	access, err := signAccessToken(account, s.cfg.AccessTokenTTL, []byte(s.cfg.JWTSecret))
	if err != nil {
		return err
	}
	refresh, err := s.sessions.Issue(c.UserContext(), account.ID, s.cfg.RefreshTokenTTL)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    int64(s.cfg.AccessTokenTTL / time.Second),
		"user":          userJSON(account),
	})
}

func userJSON(account Account) fiber.Map {
	return fiber.Map{
		"id":         account.ID,
		"email":      account.Email,
		"created_at": account.CreatedAt,
	}
}

// claimsFromRequest verifies the bearer access token. The anon API key is
// not a user session.
func (s *Server) claimsFromRequest(c *fiber.Ctx) (AccessClaims, error) {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return AccessClaims{}, errInvalidToken
	}
	return parseAccessToken(token, []byte(s.cfg.JWTSecret))
}

func authError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":             "invalid_grant",
		"error_description": msg,
		"msg":               msg,
	})
}
