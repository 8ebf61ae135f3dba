package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/vaultbridge/vaultbridge/internal/controllers"
	"github.com/vaultbridge/vaultbridge/internal/middlewares"
	"github.com/vaultbridge/vaultbridge/internal/version"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

const BasePath = "/service/devops"

type HTTPServerDependencies struct {
	SessionCache        domain.SessionAuthorizationCache
	SafeguardManager    domain.SafeguardManager
	SafeguardController *controllers.SafeguardController
	PluginsController   *controllers.PluginsController
	RequestTimeout      time.Duration
	DisableAccessLog    bool
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName:      "vaultbridge",
		ErrorHandler: controllers.ErrorHandler,
	})

	router.Use(cors.New())
	if !deps.DisableAccessLog {
		router.Use(logger.New())
	}

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "vaultbridge",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := router.Group(BasePath, middlewares.RequestTimeoutMiddleware(deps.RequestTimeout))

	requireSession := middlewares.SessionMiddleware(deps.SessionCache)

	safeguardCtrl := deps.SafeguardController

	safeguard := api.Group("/Safeguard")
	safeguard.Get("/", requireSession, safeguardCtrl.GetSafeguard)
	safeguard.Put("/", safeguardCtrl.SetSafeguard)
	safeguard.Get("/Logon", middlewares.LogonMiddleware(deps.SessionCache, deps.SafeguardManager), safeguardCtrl.Logon)
	safeguard.Get("/Logoff", requireSession, safeguardCtrl.Logoff)

	safeguard.Get("/Configuration", requireSession, safeguardCtrl.GetConfiguration)
	safeguard.Post("/Configuration", requireSession, safeguardCtrl.ConfigureService)
	safeguard.Delete("/Configuration", requireSession, safeguardCtrl.DeleteConfiguration)

	safeguard.Get("/ClientCertificate", requireSession, safeguardCtrl.GetClientCertificate)
	safeguard.Post("/ClientCertificate", requireSession, safeguardCtrl.InstallClientCertificate)
	safeguard.Delete("/ClientCertificate", requireSession, safeguardCtrl.RemoveClientCertificate)
	safeguard.Get("/CSR", requireSession, safeguardCtrl.GetCSR)

	safeguard.Get("/AvailableAccounts", requireSession, safeguardCtrl.GetAvailableAccounts)
	safeguard.Get("/A2ARegistration", requireSession, safeguardCtrl.GetA2ARegistration)
	safeguard.Delete("/A2ARegistration", requireSession, safeguardCtrl.DeleteA2ARegistration)
	safeguard.Get("/A2ARegistration/RetrievableAccounts", requireSession, safeguardCtrl.GetRetrievableAccounts)
	safeguard.Post("/A2ARegistration/RetrievableAccounts", requireSession, safeguardCtrl.AddRetrievableAccounts)

	pluginsCtrl := deps.PluginsController

	plugins := api.Group("/Plugins", requireSession)
	plugins.Get("/", pluginsCtrl.ListPlugins)

	// Fixed segments before /:name
	plugins.Delete("/Accounts", pluginsCtrl.DeleteAllAccounts)
	plugins.Post("/Sync", pluginsCtrl.SyncAll)

	plugins.Get("/:name", pluginsCtrl.GetPlugin)
	plugins.Put("/:name", pluginsCtrl.SetConfiguration)
	plugins.Delete("/:name", pluginsCtrl.DeletePlugin)
	plugins.Post("/:name/Load", pluginsCtrl.LoadPlugin)
	plugins.Post("/:name/Unload", pluginsCtrl.UnloadPlugin)
	plugins.Post("/:name/TestConnection", pluginsCtrl.TestConnection)
	plugins.Get("/:name/Accounts", pluginsCtrl.GetAccounts)
	plugins.Put("/:name/Accounts", pluginsCtrl.SaveAccounts)
	plugins.Delete("/:name/Accounts", pluginsCtrl.DeleteAccounts)
	plugins.Post("/:name/Sync", pluginsCtrl.SyncPlugin)

	return router
}
