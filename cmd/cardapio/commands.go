package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/catalog"
	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
	"github.com/Lixing-Zhang/restaurant-backend/internal/ticket"
	"github.com/spf13/cobra"
)

const appName = "cardapio"

func rootCmd() *cobra.Command {
	opts := defaultOptions()

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Restaurant menu and order desk",
		Long: `Cardapio keeps the restaurant menu with live stock and records
customer orders. An order is only recorded when every dish in it is in
stock, and the stock of all its dishes is taken in the same step.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.backend, "store", opts.backend, "Store backend (memory, file, postgres)")
	flags.StringVar(&opts.storeFile, "store-file", opts.storeFile, "State file for the file backend")
	flags.StringVar(&opts.databaseURL, "database-url", opts.databaseURL, "Connection string for the postgres backend")
	flags.StringVar(&opts.ticketDir, "ticket-dir", opts.ticketDir, "Also write kitchen tickets into this directory")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		importCmd(&opts),
		menuCmd(&opts),
		searchCmd(&opts),
		orderCmd(&opts),
		restockCmd(&opts),
		ordersCmd(&opts),
		payCmd(&opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// withApp opens the core for the duration of fn
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, *opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func importCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file-or-url>",
		Short: "Import a JSON or YAML menu, adding new dishes and updating existing ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				menu, err := catalog.NewLoader(nil).Load(ctx, args[0])
				if err != nil {
					return err
				}
				result, err := catalog.Apply(ctx, a.menu, menu)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported menu: %d categories created, %d dishes created, %d dishes updated\n",
					result.CategoriesCreated, result.DishesCreated, result.DishesUpdated)
				return nil
			})
		},
	}
}

func menuCmd(opts *options) *cobra.Command {
	var inStock bool

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Show the menu grouped by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				menu, err := a.menu.Menu(ctx, inStock)
				if err != nil {
					return err
				}
				return printMenu(cmd.OutOrStdout(), menu)
			})
		},
	}
	cmd.Flags().BoolVar(&inStock, "in-stock", false, "Hide sold out dishes")
	return cmd
}

func searchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Find dishes whose name contains term",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				dishes, err := a.menu.Search(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if len(dishes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No dishes found.")
					return nil
				}
				return printDishes(cmd.OutOrStdout(), dishes, true)
			})
		},
	}
}

func orderCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "order <customer> <code[:qty]>...",
		Short: "Place an order and print its ticket",
		Example: `  cardapio order "Mesa 3" P1:2 P2:2
  cardapio order "Balcão" B1`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				lines, err := resolveLines(ctx, a.menu, args[1:])
				if err != nil {
					return err
				}
				order, err := a.orders.PlaceOrder(ctx, args[0], lines)
				if err != nil {
					return err
				}
				return ticket.Render(cmd.OutOrStdout(), order, time.Local)
			})
		},
	}
}

func restockCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restock <code> <quantity>",
		Short: "Add units to a dish's stock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				dish, err := a.menu.FindDishByCode(ctx, args[0])
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				qty, err := service.ParseQuantity(args[1])
				if err != nil {
					return err
				}
				dish, err = a.orders.RestockDish(ctx, dish.ID, qty)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d in stock\n", dish.Code, dish.Name, dish.Stock)
				return nil
			})
		},
	}
}

func ordersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				orders, err := a.orders.ListOrders(ctx)
				if err != nil {
					return err
				}
				if len(orders) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No orders yet.")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCUSTOMER\tCREATED\tTOTAL\tPAID")
				for _, o := range orders {
					paid := "no"
					if o.Paid {
						paid = "yes"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\tR$ %s\t%s\n",
						o.ID, o.CustomerLabel, o.CreatedAt.Local().Format("02/01/2006 15:04"), o.Total().StringFixed(2), paid)
				}
				return tw.Flush()
			})
		},
	}
}

func payCmd(opts *options) *cobra.Command {
	var unpaid bool

	cmd := &cobra.Command{
		Use:   "pay <order-id>",
		Short: "Mark an order as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				order, err := a.orders.MarkPaid(ctx, args[0], !unpaid)
				if err != nil {
					return err
				}
				state := "paid"
				if !order.Paid {
					state = "unpaid"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Order %s (%s) is %s: R$ %s\n",
					order.ID, order.CustomerLabel, state, order.Total().StringFixed(2))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unpaid, "unpaid", false, "Clear the paid flag instead")
	return cmd
}

// resolveLines turns CODE, CODE:QTY or CODE,QTY arguments into order lines
func resolveLines(ctx context.Context, menu *service.MenuService, args []string) ([]models.LineRequest, error) {
	lines := make([]models.LineRequest, 0, len(args))
	for _, arg := range args {
		code, qtyText, found := strings.Cut(arg, ":")
		if !found {
			code, qtyText, found = strings.Cut(arg, ",")
		}

		qty := 1
		if found {
			n, err := service.ParseQuantity(qtyText)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", arg, err)
			}
			qty = n
		}

		dish, err := menu.FindDishByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", code, err)
		}
		lines = append(lines, models.LineRequest{DishID: dish.ID, Quantity: qty})
	}
	return lines, nil
}

func printMenu(w io.Writer, menu []models.CategoryMenu) error {
	if len(menu) == 0 {
		_, err := fmt.Fprintln(w, "The menu is empty.")
		return err
	}
	for i, c := range menu {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s ==\n", c.Category.Name)
		if err := printDishes(w, c.Dishes, false); err != nil {
			return err
		}
	}
	return nil
}

func printDishes(w io.Writer, dishes []models.Dish, withCategory bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range dishes {
		stock := fmt.Sprintf("%d in stock", d.Stock)
		if !d.InStock() {
			stock = "sold out"
		}
		if withCategory {
			fmt.Fprintf(tw, "%s\t%s\t%s\tR$ %s\t%s\n", d.Code, d.Name, d.Category, d.Price.StringFixed(2), stock)
		} else {
			fmt.Fprintf(tw, "%s\t%s\tR$ %s\t%s\n", d.Code, d.Name, d.Price.StringFixed(2), stock)
		}
	}
	return tw.Flush()
}
