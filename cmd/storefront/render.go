package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/storefront/admin"
	cartctl "github.com/fjod/storefront/internal/storefront/cart"
	"github.com/fjod/storefront/internal/storefront/checkout"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func renderProducts(w io.Writer, products []domain.Product) {
	fmt.Fprintln(w, titleStyle.Render("Products"))
	if len(products) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no products"))
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, pricing.Format(p.Price))
	}
	_ = tw.Flush()
}

func renderQuote(w io.Writer, q domain.Quote) {
	tw := table(w)
	fmt.Fprintf(tw, "Subtotal\t%s\n", pricing.Format(q.Subtotal))
	if q.Shipping.IsZero() {
		fmt.Fprintf(tw, "Shipping\t%s\n", okStyle.Render("FREE"))
	} else {
		fmt.Fprintf(tw, "Shipping\t%s\n", pricing.Format(q.Shipping))
	}
	if q.Discount.IsPositive() {
		label := "Discount"
		if q.PromoCode != "" {
			label += " (" + q.PromoCode + ")"
		}
		fmt.Fprintf(tw, "%s\t-%s\n", label, pricing.Format(q.Discount))
	}
	fmt.Fprintf(tw, "Total\t%s\n", pricing.Format(q.Total))
	_ = tw.Flush()
}

func renderCart(w io.Writer, v cartctl.View) {
	fmt.Fprintln(w, titleStyle.Render("Cart"))
	if v.LoginRequired {
		fmt.Fprintln(w, errStyle.Render("please log in to see your cart"))
		return
	}
	if v.IsEmpty() {
		fmt.Fprintln(w, mutedStyle.Render("your cart is empty"))
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tUNIT\tLINE")
	for _, it := range v.Cart.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			it.Product.ID, it.Product.Name, it.Quantity,
			pricing.Format(it.Product.UnitPrice), pricing.Format(it.LineTotal()))
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
	renderQuote(w, v.Quote)
	if v.Err != nil {
		fmt.Fprintln(w, errStyle.Render(v.Err.Error()))
	}
}

func renderSummary(w io.Writer, s checkout.Summary) {
	fmt.Fprintln(w, titleStyle.Render("Order summary")+" "+mutedStyle.Render("["+s.Step.String()+"]"))
	if s.Cart != nil {
		for _, it := range s.Cart.Items {
			fmt.Fprintf(w, "  %d x %s\n", it.Quantity, it.Product.Name)
		}
	}
	renderQuote(w, s.Quote)
	if a := s.Address; a.FullName != "" {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Ship to %s, %s, %s %s %s", a.FullName, a.Address, a.City, a.State, a.ZipCode)))
	}
	if s.Err != nil {
		fmt.Fprintln(w, errStyle.Render(s.Err.Error()))
	}
}

func renderStats(w io.Writer, s admin.Stats) {
	fmt.Fprintln(w, titleStyle.Render("Dashboard"))
	tw := table(w)
	fmt.Fprintf(tw, "Users\t%d\n", s.TotalUsers)
	fmt.Fprintf(tw, "Products\t%d\n", s.TotalProducts)
	fmt.Fprintf(tw, "Orders\t%d\n", s.TotalOrders)
	fmt.Fprintf(tw, "Revenue\t%s\n", pricing.Format(s.TotalRevenue))
	_ = tw.Flush()

	if len(s.RecentOrders) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Recent orders"))
		renderOrders(w, s.RecentOrders)
	}
	if len(s.RecentUsers) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Recent users"))
		renderUsers(w, s.RecentUsers)
	}
}

func renderUsers(w io.Writer, users []api.UserDTO) {
	if len(users) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no users"))
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE\tJOINED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Role, u.CreatedAt.Format("2006-01-02"))
	}
	_ = tw.Flush()
}

func renderOrders(w io.Writer, orders []api.OrderDTO) {
	if len(orders) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no orders"))
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tITEMS\tTOTAL\tSTATUS\tPLACED")
	for _, o := range orders {
		customer := o.User.Username
		if customer == "" {
			customer = o.User.ID
		}
		names := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			names = append(names, fmt.Sprintf("%dx %s", it.Quantity, it.Product.Name))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, customer, strings.Join(names, ", "), pricing.Format(o.Total.Decimal), o.Status,
			o.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}
