package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/widgets/internal/model"
	"github.com/faucetdb/widgets/internal/service"
)

func newWidgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Manage widgets",
	}

	cmd.AddCommand(newWidgetCreateCmd())
	cmd.AddCommand(newWidgetListCmd())

	return cmd
}

// ---------- widget create ----------

func newWidgetCreateCmd() *cobra.Command {
	var (
		name       string
		priceCents int64
	)

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a widget with the Fresh status",
		Example: `  widgets widget create --name Stembolt --price-cents 1999`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWidgetCreate(name, priceCents)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Widget name (required)")
	cmd.Flags().Int64Var(&priceCents, "price-cents", 0, "Price in cents, greater than zero (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("price-cents")

	return cmd
}

func runWidgetCreate(name string, priceCents int64) error {
	ctx := context.Background()
	_, logger, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := service.NewWidgetCreator(st, logger).CreateWidget(ctx, &model.Widget{
		Name:       name,
		PriceCents: priceCents,
	})
	if err != nil {
		return fmt.Errorf("create widget: %w (has 'widgets db seed' been run?)", err)
	}
	if !res.Created {
		for _, verr := range res.Widget.Validate() {
			fmt.Fprintf(os.Stderr, "  - %v\n", verr)
		}
		return fmt.Errorf("widget is invalid")
	}

	fmt.Printf("Created widget %d (%s, status %s)\n", res.Widget.ID, res.Widget.Name, res.Widget.Status)
	return nil
}

// ---------- widget list ----------

func newWidgetListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List widgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWidgetList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runWidgetList(jsonOutput bool) error {
	ctx := context.Background()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	widgets, err := st.ListWidgets(ctx)
	if err != nil {
		return fmt.Errorf("list widgets: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(widgets)
	}

	if len(widgets) == 0 {
		fmt.Println("No widgets yet. Use 'widgets widget create' to add one.")
		return nil
	}

	fmt.Printf("%-6s %-32s %-12s %-12s\n", "ID", "NAME", "PRICE", "STATUS")
	fmt.Printf("%-6s %-32s %-12s %-12s\n", "--", "----", "-----", "------")
	for _, w := range widgets {
		price := fmt.Sprintf("%d.%02d", w.PriceCents/100, w.PriceCents%100)
		fmt.Printf("%-6d %-32s %-12s %-12s\n", w.ID, w.Name, price, w.Status)
	}
	return nil
}
