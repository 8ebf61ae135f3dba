package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vaultbridge/vaultbridge/internal/initialization"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

func NewPluginsCommand(serviceContainer *initialization.ServiceContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect vault plugins",
	}

	cmd.AddCommand(NewPluginsListCommand(serviceContainer))
	cmd.AddCommand(NewPluginsTypesCommand(serviceContainer))

	return cmd
}

func NewPluginsListCommand(serviceContainer *initialization.ServiceContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered plugin instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsList(cmd.Context(), serviceContainer)
		},
	}

	return cmd
}

func runPluginsList(ctx context.Context, serviceContainer *initialization.ServiceContainer) error {
	deps, err := serviceContainer.BuildServiceDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close(ctx)

	plugins, err := deps.PluginManager.ListPlugins(ctx)
	if err != nil {
		return err
	}

	if len(plugins) == 0 {
		fmt.Println("No plugins registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tDISPLAY NAME\tACCOUNTS")

	for _, plugin := range plugins {
		mappings, err := deps.Repository.GetAccountMappingsByVault(ctx, plugin.Name)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", plugin.Name, plugin.Type, plugin.DisplayName, len(mappings))
	}

	return w.Flush()
}

func NewPluginsTypesCommand(serviceContainer *initialization.ServiceContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List plugin types this build supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := serviceContainer.BuildServiceDependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.Close(cmd.Context())

			types := deps.PluginSelector.Types()
			sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

			for _, pluginType := range types {
				creator, err := deps.PluginSelector.SelectCreator(cmd.Context(), domain.SelectPluginParams{PluginType: pluginType})
				if err != nil {
					return err
				}

				fmt.Printf("%-12s %s\n", pluginType, creator.Description())
			}

			return nil
		},
	}

	return cmd
}
