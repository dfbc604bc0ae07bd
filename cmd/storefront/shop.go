package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storefront/admin"
	cartctl "github.com/fjod/storefront/internal/storefront/cart"
	"github.com/fjod/storefront/internal/storefront/catalog"
	"github.com/fjod/storefront/internal/storefront/checkout"
	"github.com/fjod/storefront/internal/storefront/client"
	"github.com/fjod/storefront/internal/storefront/session"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// connect restores the saved session and builds a client for it.
func (a *app) connect() (*client.Client, *session.Session, error) {
	sess, err := session.Restore(session.NewFileStore(a.cfg.Client.SessionFile))
	if err != nil {
		return nil, nil, err
	}
	c := client.New(a.cfg.Client.BaseURL, sess,
		client.WithLogger(a.log.Named("client")),
		client.WithTimeout(a.cfg.Client.Timeout))
	return c, sess, nil
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.connect()
			if err != nil {
				return err
			}
			u, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("logged in as "+u.Username+" ("+u.Role+")"))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) signupCmd() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.connect()
			if err != nil {
				return err
			}
			u, err := c.Signup(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("welcome, "+u.Username))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	for _, f := range []string{"username", "email", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sess, err := a.connect()
			if err != nil {
				return err
			}
			if err := sess.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("logged out"))
			return nil
		},
	}
}

func (a *app) productsCmd() *cobra.Command {
	var category, minPrice, maxPrice, sortBy string
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := productFilter(category, minPrice, maxPrice, sortBy)
			if err != nil {
				return err
			}
			c, _, err := a.connect()
			if err != nil {
				return err
			}
			products, err := c.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			renderProducts(cmd.OutOrStdout(), filter.Apply(products))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&category, "category", "", "only categories containing this text")
	f.StringVar(&minPrice, "min-price", "", "lowest price to show")
	f.StringVar(&maxPrice, "max-price", "", "highest price to show")
	f.StringVar(&sortBy, "sort", "", "order by price: low or high")
	return cmd
}

func productFilter(category, minPrice, maxPrice, sortBy string) (catalog.Filter, error) {
	filter := catalog.Filter{Category: category}
	var err error
	if minPrice != "" {
		if filter.MinPrice, err = decimal.NewFromString(minPrice); err != nil {
			return filter, fmt.Errorf("invalid --min-price %q", minPrice)
		}
	}
	if maxPrice != "" {
		if filter.MaxPrice, err = decimal.NewFromString(maxPrice); err != nil {
			return filter, fmt.Errorf("invalid --max-price %q", maxPrice)
		}
	}
	if filter.Sort, err = catalog.ParseSort(sortBy); err != nil {
		return filter, err
	}
	return filter, filter.Validate()
}

func (a *app) cartController() (*cartctl.Controller, error) {
	c, _, err := a.connect()
	if err != nil {
		return nil, err
	}
	rules, err := a.cfg.PricingRules()
	if err != nil {
		return nil, err
	}
	return cartctl.NewController(c, rules, a.log.Named("cart")), nil
}

// cartAction loads the cart, runs fn and prints the resulting view. A
// missing session fails the load with client.ErrAuthRequired.
func (a *app) cartAction(fn func(ctx context.Context, cc *cartctl.Controller) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cc, err := a.cartController()
		if err != nil {
			return err
		}
		if err := cc.Refresh(cmd.Context()); err != nil {
			return err
		}
		if fn != nil {
			if err := fn(cmd.Context(), cc); err != nil {
				// show what the cart looks like now, conflicts have refetched it
				renderCart(cmd.OutOrStdout(), cc.View())
				return explainCartError(err)
			}
		}
		renderCart(cmd.OutOrStdout(), cc.View())
		return nil
	}
}

func explainCartError(err error) error {
	switch {
	case errors.Is(err, client.ErrVersionConflict):
		return fmt.Errorf("%w; the cart was reloaded, please try again", err)
	case client.IsRetryable(err):
		return fmt.Errorf("%w; please try again", err)
	}
	return err
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return n, nil
}

func (a *app) cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show or change the cart",
		RunE:  a.cartAction(nil),
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the cart with totals",
			RunE:  a.cartAction(nil),
		},
		&cobra.Command{
			Use:   "add <product-id> [quantity]",
			Short: "Add a product",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				qty := 1
				if len(args) == 2 {
					n, err := parseQuantity(args[1])
					if err != nil {
						return err
					}
					qty = n
				}
				return a.cartAction(func(ctx context.Context, cc *cartctl.Controller) error {
					return cc.Add(ctx, args[0], qty)
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "set <product-id> <quantity>",
			Short: "Set a quantity; zero removes the item",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				qty, err := parseQuantity(args[1])
				if err != nil {
					return err
				}
				return a.cartAction(func(ctx context.Context, cc *cartctl.Controller) error {
					return cc.SetQuantity(ctx, args[0], qty)
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "remove <product-id>",
			Short: "Remove a product",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.cartAction(func(ctx context.Context, cc *cartctl.Controller) error {
					return cc.Remove(ctx, args[0])
				})(cmd, args)
			},
		},
		a.promoCmd(),
	)
	return cmd
}

func (a *app) promoCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "promo [code]",
		Short: "Apply a promo code, or --clear it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !reset && len(args) == 0 {
				return errors.New("promo code required")
			}
			return a.cartAction(func(ctx context.Context, cc *cartctl.Controller) error {
				if reset {
					return cc.ClearPromo(ctx)
				}
				return cc.ApplyPromo(ctx, args[0])
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&reset, "clear", false, "remove the applied promo code")
	return cmd
}

func (a *app) checkoutCmd() *cobra.Command {
	var (
		addr     domain.ShippingAddress
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the current cart (cash on delivery)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.connect()
			if err != nil {
				return err
			}
			rules, err := a.cfg.PricingRules()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			flow := checkout.New(c, rules, checkout.WithLogger(a.log.Named("checkout")))
			if err := flow.Start(ctx); err != nil {
				return err
			}
			if err := flow.SetAddress(addr); err != nil {
				return err
			}
			if err := flow.ProceedToPayment(); err != nil {
				renderSummary(out, flow.Summary())
				return err
			}

			id, err := placeWithRetry(ctx, flow, attempts, a.log)
			renderSummary(out, flow.Summary())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, okStyle.Render("order placed: "+id))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr.FullName, "full-name", "", "recipient name")
	f.StringVar(&addr.Address, "address", "", "street address")
	f.StringVar(&addr.City, "city", "", "city")
	f.StringVar(&addr.State, "state", "", "state")
	f.StringVar(&addr.ZipCode, "zip", "", "zip code")
	f.StringVar(&addr.Phone, "phone", "", "phone number")
	f.IntVar(&attempts, "attempts", 3, "submission attempts on transient failures")
	return cmd
}

// placeWithRetry resubmits on transient failures. Every attempt reuses the
// flow's idempotency key.
func placeWithRetry(ctx context.Context, flow *checkout.Session, attempts int, log *zap.Logger) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	backoff := 200 * time.Millisecond
	var lastErr error
	for i := 1; i <= attempts; i++ {
		id, err := flow.PlaceOrder(ctx)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !client.IsRetryable(err) || i == attempts {
			break
		}
		log.Info("retrying order submission", zap.Int("attempt", i), zap.Error(err))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", lastErr
}

func (a *app) dashboard() (*admin.Dashboard, error) {
	c, sess, err := a.connect()
	if err != nil {
		return nil, err
	}
	return admin.NewDashboard(c, sess), nil
}

func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Shop administration (admin accounts only)",
	}

	var query string
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "List users, optionally filtered by name or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.dashboard()
			if err != nil {
				return err
			}
			list, err := d.Users(cmd.Context(), query)
			if err != nil {
				return err
			}
			renderUsers(cmd.OutOrStdout(), list)
			return nil
		},
	}
	usersCmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive username or email filter")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Overview of users, products, orders and revenue",
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := a.dashboard()
				if err != nil {
					return err
				}
				stats, err := d.Stats(cmd.Context())
				if err != nil {
					return err
				}
				renderStats(cmd.OutOrStdout(), stats)
				return nil
			},
		},
		usersCmd,
		&cobra.Command{
			Use:   "orders",
			Short: "List all orders, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := a.dashboard()
				if err != nil {
					return err
				}
				list, err := d.Orders(cmd.Context())
				if err != nil {
					return err
				}
				renderOrders(cmd.OutOrStdout(), list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete-user <id>",
			Short: "Delete a user account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := a.dashboard()
				if err != nil {
					return err
				}
				if err := d.DeleteUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("deleted user "+args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete-product <id>",
			Short: "Delete a product from the catalog",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := a.dashboard()
				if err != nil {
					return err
				}
				if err := d.DeleteProduct(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("deleted product "+args[0]))
				return nil
			},
		},
	)
	return cmd
}
