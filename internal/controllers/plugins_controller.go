package controllers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

type PluginsControllerDependencies struct {
	PluginManager         domain.PluginManager
	AccountMappingManager domain.AccountMappingManager
}

type PluginsController struct {
	pluginManager         domain.PluginManager
	accountMappingManager domain.AccountMappingManager
}

func NewPluginsController(deps PluginsControllerDependencies) *PluginsController {
	return &PluginsController{
		pluginManager:         deps.PluginManager,
		accountMappingManager: deps.AccountMappingManager,
	}
}

func (ctrl *PluginsController) ListPlugins(c fiber.Ctx) error {
	plugins, err := ctrl.pluginManager.ListPlugins(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(plugins)
}

func (ctrl *PluginsController) GetPlugin(c fiber.Ctx) error {
	plugin, err := ctrl.pluginManager.GetPlugin(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	return c.JSON(plugin)
}

func (ctrl *PluginsController) SetConfiguration(c fiber.Ctx) error {
	name := c.Params("name")

	var configuration map[string]string
	if err := c.Bind().Body(&configuration); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Configuration must be an object of string values")
	}

	plugin, err := ctrl.pluginManager.SetConfiguration(c.Context(), name, configuration)
	if err != nil {
		return err
	}

	if plugin == nil {
		return fiber.NewError(fiber.StatusNotFound, "Plugin "+name+" not found")
	}

	return c.JSON(plugin)
}

func (ctrl *PluginsController) DeletePlugin(c fiber.Ctx) error {
	if err := ctrl.pluginManager.DeletePlugin(c.Context(), c.Params("name")); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (ctrl *PluginsController) LoadPlugin(c fiber.Ctx) error {
	plugin, err := ctrl.pluginManager.LoadPlugin(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	return c.JSON(plugin)
}

func (ctrl *PluginsController) UnloadPlugin(c fiber.Ctx) error {
	plugin, err := ctrl.pluginManager.UnloadPlugin(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	return c.JSON(plugin)
}

func (ctrl *PluginsController) TestConnection(c fiber.Ctx) error {
	name := c.Params("name")

	if err := ctrl.pluginManager.TestConnection(c.Context(), name); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"name":      name,
		"connected": true,
	})
}

func (ctrl *PluginsController) GetAccounts(c fiber.Ctx) error {
	mappings, err := ctrl.accountMappingManager.GetAccountMappings(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	return c.JSON(mappings)
}

func (ctrl *PluginsController) SaveAccounts(c fiber.Ctx) error {
	var accounts []domain.RetrievableAccount
	if err := c.Bind().Body(&accounts); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	mappings, err := ctrl.accountMappingManager.SaveAccountMappings(c.Context(), c.Params("name"), accounts)
	if err != nil {
		return err
	}

	return c.JSON(mappings)
}

func (ctrl *PluginsController) DeleteAccounts(c fiber.Ctx) error {
	if err := ctrl.accountMappingManager.DeleteAccountMappings(c.Context(), c.Params("name")); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (ctrl *PluginsController) DeleteAllAccounts(c fiber.Ctx) error {
	if !confirmed(c) {
		return fiber.NewError(fiber.StatusBadRequest, "Deleting all account mappings requires confirm=yes")
	}

	if err := ctrl.accountMappingManager.DeleteAllAccountMappings(c.Context()); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (ctrl *PluginsController) SyncAll(c fiber.Ctx) error {
	result, err := ctrl.accountMappingManager.SyncCredentials(c.Context(), "")
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (ctrl *PluginsController) SyncPlugin(c fiber.Ctx) error {
	result, err := ctrl.accountMappingManager.SyncCredentials(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	return c.JSON(result)
}
