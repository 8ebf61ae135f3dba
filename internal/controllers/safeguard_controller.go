package controllers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/internal/auth"
	"github.com/vaultbridge/vaultbridge/internal/middlewares"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

type SafeguardControllerDependencies struct {
	SafeguardManager domain.SafeguardManager
	SessionCache     domain.SessionAuthorizationCache
}

type SafeguardController struct {
	safeguardManager domain.SafeguardManager
	sessionCache     domain.SessionAuthorizationCache
}

func NewSafeguardController(deps SafeguardControllerDependencies) *SafeguardController {
	return &SafeguardController{
		safeguardManager: deps.SafeguardManager,
		sessionCache:     deps.SessionCache,
	}
}

func (ctrl *SafeguardController) GetSafeguard(c fiber.Ctx) error {
	connection, err := ctrl.safeguardManager.GetSafeguardConnection(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(connection)
}

type SetSafeguardRequest struct {
	ApplianceAddress string `json:"appliance_address"`
	IgnoreSSL        bool   `json:"ignore_ssl"`
	APIVersion       int    `json:"api_version"`
}

func (ctrl *SafeguardController) SetSafeguard(c fiber.Ctx) error {
	var req SetSafeguardRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	connection, err := ctrl.safeguardManager.SetSafeguardData(c.Context(), domain.SafeguardData{
		ApplianceAddress: req.ApplianceAddress,
		IgnoreSSL:        req.IgnoreSSL,
		APIVersion:       req.APIVersion,
	})
	if err != nil {
		return err
	}

	return c.JSON(connection)
}

// Logon runs after LogonMiddleware has stored the session and set the cookie
func (ctrl *SafeguardController) Logon(c fiber.Ctx) error {
	connection, err := ctrl.safeguardManager.GetSafeguardConnection(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(connection)
}

func (ctrl *SafeguardController) Logoff(c fiber.Ctx) error {
	session, ok := middlewares.SessionFromLocals(c)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "No session to log off")
	}

	ctrl.sessionCache.Remove(session.Key)

	c.ClearCookie(auth.SessionCookieName)

	log.Info().Str("user", session.UserName).Msg("Session logged off")

	return c.JSON(fiber.Map{
		"status": "logged off",
	})
}

func (ctrl *SafeguardController) GetConfiguration(c fiber.Ctx) error {
	configuration, err := ctrl.safeguardManager.GetDevOpsConfiguration(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(configuration)
}

func (ctrl *SafeguardController) ConfigureService(c fiber.Ctx) error {
	if len(c.Body()) > 0 {
		var upload domain.ClientCertificateUpload
		if err := c.Bind().Body(&upload); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if upload.Base64CertificateData != "" {
			if _, err := ctrl.safeguardManager.InstallClientCertificate(c.Context(), upload); err != nil {
				return err
			}
		}
	}

	configuration, err := ctrl.safeguardManager.ConfigureDevOpsService(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(configuration)
}

func (ctrl *SafeguardController) DeleteConfiguration(c fiber.Ctx) error {
	if err := ctrl.safeguardManager.DeleteDevOpsConfiguration(c.Context()); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (ctrl *SafeguardController) GetClientCertificate(c fiber.Ctx) error {
	certificate, err := ctrl.safeguardManager.GetClientCertificate(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(certificate)
}

func (ctrl *SafeguardController) InstallClientCertificate(c fiber.Ctx) error {
	var upload domain.ClientCertificateUpload
	if err := c.Bind().Body(&upload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	certificate, err := ctrl.safeguardManager.InstallClientCertificate(c.Context(), upload)
	if err != nil {
		return err
	}

	return c.JSON(certificate)
}

func (ctrl *SafeguardController) RemoveClientCertificate(c fiber.Ctx) error {
	if err := ctrl.safeguardManager.RemoveClientCertificate(c.Context()); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (ctrl *SafeguardController) GetCSR(c fiber.Ctx) error {
	params := domain.GenerateCSRParams{
		SubjectName: c.Query("subjectName"),
	}

	if size := c.Query("size"); size != "" {
		keySize, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("%w: size must be a number", domain.ErrValidation)
		}

		params.KeySize = keySize
	}

	csr, err := ctrl.safeguardManager.GenerateCSR(c.Context(), params)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/pkcs10")

	return c.SendString(csr)
}

func (ctrl *SafeguardController) GetAvailableAccounts(c fiber.Ctx) error {
	accounts, err := ctrl.safeguardManager.GetAvailableAccounts(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(accounts)
}

func (ctrl *SafeguardController) GetA2ARegistration(c fiber.Ctx) error {
	registration, err := ctrl.safeguardManager.GetA2ARegistration(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(registration)
}

func (ctrl *SafeguardController) DeleteA2ARegistration(c fiber.Ctx) error {
	if !confirmed(c) {
		return fiber.NewError(fiber.StatusBadRequest, "Deleting the A2A registration requires confirm=yes")
	}

	if err := ctrl.safeguardManager.DeleteA2ARegistration(c.Context()); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (ctrl *SafeguardController) GetRetrievableAccounts(c fiber.Ctx) error {
	accounts, err := ctrl.safeguardManager.GetRetrievableAccounts(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(accounts)
}

func (ctrl *SafeguardController) AddRetrievableAccounts(c fiber.Ctx) error {
	var accounts []domain.AvailableAccount
	if err := c.Bind().Body(&accounts); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	retrievable, err := ctrl.safeguardManager.AddRetrievableAccounts(c.Context(), accounts)
	if err != nil {
		return err
	}

	return c.JSON(retrievable)
}

func confirmed(c fiber.Ctx) bool {
	return strings.EqualFold(c.Query("confirm"), "yes")
}
