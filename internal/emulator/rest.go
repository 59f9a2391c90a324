package emulator

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const singleObjectAccept = "application/vnd.pgrst.object+json"

// registerTableRoutes wires the relational surface: table reads and writes
// under /rest/v1, the deposit procedure, and the admin review endpoints.
func (s *Server) registerTableRoutes(r fiber.Router) {
	r.Get("/rest/v1/profiles", s.handleSelectProfiles)
	r.Post("/rest/v1/profiles", s.handleInsertProfile)
	r.Get("/rest/v1/capabilities", s.handleSelectCapabilities)
	r.Get("/rest/v1/tips", s.handleSelectTips)
	r.Post("/rest/v1/tips", s.handleInsertTip)
	r.Get("/rest/v1/provider_applications", s.handleSelectApplications)
	r.Post("/rest/v1/provider_applications", s.handleInsertApplication)
	r.Get("/rest/v1/wallets", s.handleSelectWallets)
	r.Post("/rest/v1/rpc/deposit_funds", s.handleDepositFunds)

	r.Post("/admin/v1/applications/:id/approve", s.handleReviewApplication(ApplicationApproved))
	r.Post("/admin/v1/applications/:id/reject", s.handleReviewApplication(ApplicationRejected))
}

// Application statuses, mirrored from the client vocabulary so the
// emulator compiles without importing it.
const (
	ApplicationPending  = "PENDING"
	ApplicationApproved = "APPROVED"
	ApplicationRejected = "REJECTED"
)

func (s *Server) handleSelectProfiles(c *fiber.Ctx) error {
	id := eqFilter(c, "id")
	if id == "" {
		return tableError(c, http.StatusBadRequest, "profiles reads require an id filter")
	}
	row, err := s.store.ProfileByID(c.UserContext(), id)
	if err == ErrNotFound {
		return respondAbsent(c)
	}
	if err != nil {
		return err
	}
	return respondRow(c, row)
}

func (s *Server) handleInsertProfile(c *fiber.Ctx) error {
	claims, err := s.claimsFromRequest(c)
	if err != nil {
		return tableError(c, http.StatusUnauthorized, "profile writes require a session")
	}
	var rows []ProfileRow
	if err := c.BodyParser(&rows); err != nil || len(rows) != 1 {
		return tableError(c, http.StatusBadRequest, "expected a single profile row")
	}
	row := rows[0]
	// Row ownership comes from the token, never the payload.
	if row.ID != "" && row.ID != claims.Subject {
		return tableError(c, http.StatusForbidden, "cannot create a profile for another user")
	}
	row.ID = claims.Subject
	if err := s.store.InsertProfile(c.UserContext(), row); err != nil {
		if err == ErrDuplicate {
			return tableError(c, http.StatusConflict, "duplicate key value violates unique constraint \"profiles_pkey\"")
		}
		return err
	}
	return c.SendStatus(http.StatusCreated)
}

func (s *Server) handleSelectCapabilities(c *fiber.Ctx) error {
	userID := eqFilter(c, "user_id")
	if userID == "" {
		return tableError(c, http.StatusBadRequest, "capabilities reads require a user_id filter")
	}
	row, err := s.store.CapabilitiesByUser(c.UserContext(), userID)
	if err == ErrNotFound {
		return respondAbsent(c)
	}
	if err != nil {
		return err
	}
	return respondRow(c, row)
}

func (s *Server) handleSelectTips(c *fiber.Ctx) error {
	rows, err := s.store.Tips(c.UserContext(), eqFilter(c, "provider_id"))
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []TipRow{}
	}
	return c.JSON(rows)
}

func (s *Server) handleInsertTip(c *fiber.Ctx) error {
	claims, err := s.claimsFromRequest(c)
	if err != nil {
		return tableError(c, http.StatusUnauthorized, "tip writes require a session")
	}
	caps, err := s.store.CapabilitiesByUser(c.UserContext(), claims.Subject)
	if err != nil && err != ErrNotFound {
		return err
	}
	if !caps.CanPublish {
		return tableError(c, http.StatusForbidden, "publishing requires an approved provider account")
	}

	var rows []TipRow
	if err := c.BodyParser(&rows); err != nil || len(rows) != 1 {
		return tableError(c, http.StatusBadRequest, "expected a single tip row")
	}
	row := rows[0]
	if row.ProviderID != "" && row.ProviderID != claims.Subject {
		return tableError(c, http.StatusForbidden, "cannot publish a tip for another provider")
	}
	row.ID = uuid.NewString()
	row.ProviderID = claims.Subject
	row.CreatedAt = time.Now().UTC()
	row.Provider = nil
	if err := s.store.InsertTip(c.UserContext(), row); err != nil {
		return err
	}

	s.log.Info("tip published",
		slog.String("tip_id", row.ID),
		slog.String("provider_id", row.ProviderID),
		slog.String("event", row.Event),
	)
	return c.SendStatus(http.StatusCreated)
}

func (s *Server) handleSelectApplications(c *fiber.Ctx) error {
	userID := eqFilter(c, "user_id")
	if userID == "" {
		return tableError(c, http.StatusBadRequest, "application reads require a user_id filter")
	}
	row, err := s.store.ApplicationByUser(c.UserContext(), userID)
	if err == ErrNotFound {
		return respondAbsent(c)
	}
	if err != nil {
		return err
	}
	return respondRow(c, row)
}

func (s *Server) handleInsertApplication(c *fiber.Ctx) error {
	claims, err := s.claimsFromRequest(c)
	if err != nil {
		return tableError(c, http.StatusUnauthorized, "application writes require a session")
	}
	var rows []ApplicationRow
	if err := c.BodyParser(&rows); err != nil || len(rows) != 1 {
		return tableError(c, http.StatusBadRequest, "expected a single application row")
	}
	row := rows[0]
	if row.UserID != "" && row.UserID != claims.Subject {
		return tableError(c, http.StatusForbidden, "cannot apply on behalf of another user")
	}
	row.ID = uuid.NewString()
	row.UserID = claims.Subject
	row.Status = ApplicationPending
	row.CreatedAt = time.Now().UTC()
	if err := s.store.InsertApplication(c.UserContext(), row); err != nil {
		if err == ErrDuplicate {
			return tableError(c, http.StatusConflict, "duplicate key value violates unique constraint \"provider_applications_user_id_key\"")
		}
		return err
	}
	return c.SendStatus(http.StatusCreated)
}

func (s *Server) handleSelectWallets(c *fiber.Ctx) error {
	userID := eqFilter(c, "user_id")
	if userID == "" {
		return tableError(c, http.StatusBadRequest, "wallet reads require a user_id filter")
	}
	balance, err := s.store.WalletBalance(c.UserContext(), userID)
	if err == ErrNotFound {
		return respondAbsent(c)
	}
	if err != nil {
		return err
	}
	return respondRow(c, WalletRow{UserID: userID, Balance: balance})
}

func (s *Server) handleDepositFunds(c *fiber.Ctx) error {
	claims, err := s.claimsFromRequest(c)
	if err != nil {
		return tableError(c, http.StatusUnauthorized, "deposits require a session")
	}
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return tableError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Amount < 10 {
		return tableError(c, http.StatusBadRequest, "Minimum deposit is $10")
	}
	if err := s.store.EnsureWallet(c.UserContext(), claims.Subject); err != nil {
		return err
	}
	balance, err := s.store.AddToWallet(c.UserContext(), claims.Subject, req.Amount)
	if err != nil {
		return err
	}

	s.log.Info("deposit completed",
		slog.String("user_id", claims.Subject),
		slog.Float64("amount", req.Amount),
		slog.Float64("balance", balance),
	)
	return c.JSON(fiber.Map{"balance": balance})
}

// handleReviewApplication resolves a pending application. Approval unlocks
// the full provider capability set.
func (s *Server) handleReviewApplication(status string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("X-Admin-Key") != s.cfg.JWTSecret {
			return tableError(c, http.StatusForbidden, "admin key required")
		}
		app, err := s.store.ApplicationByID(c.UserContext(), c.Params("id"))
		if err == ErrNotFound {
			return tableError(c, http.StatusNotFound, "application not found")
		}
		if err != nil {
			return err
		}
		if err := s.store.SetApplicationStatus(c.UserContext(), app.ID, status); err != nil {
			return err
		}
		if status == ApplicationApproved {
			err := s.store.UpsertCapabilities(c.UserContext(), CapabilityRow{
				UserID:             app.UserID,
				CanPublish:         true,
				CanSell:            true,
				CanReceivePayments: true,
			})
			if err != nil {
				return err
			}
		}

		s.log.Info("application reviewed",
			slog.String("application_id", app.ID),
			slog.String("user_id", app.UserID),
			slog.String("status", status),
		)
		app.Status = status
		return c.JSON(app)
	}
}

// eqFilter extracts the value of a PostgREST-style `column=eq.value` query
// parameter.
func eqFilter(c *fiber.Ctx, column string) string {
	value, ok := strings.CutPrefix(c.Query(column), "eq.")
	if !ok {
		return ""
	}
	return value
}

// respondAbsent reports a missing row: 406 for single-object requests, an
// empty array otherwise.
func respondAbsent(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAccept) == singleObjectAccept {
		return tableError(c, http.StatusNotAcceptable, "JSON object requested, multiple (or no) rows returned")
	}
	return c.JSON([]any{})
}

// respondRow writes a found row: bare object for single-object requests, a
// one-element array otherwise.
func respondRow(c *fiber.Ctx, row any) error {
	if c.Get(fiber.HeaderAccept) == singleObjectAccept {
		return c.JSON(row)
	}
	return c.JSON([]any{row})
}

func tableError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"message": msg})
}
