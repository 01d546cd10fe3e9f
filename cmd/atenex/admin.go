package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"atenex-cli/internal/api"
	"atenex-cli/internal/model"
)

// requireAdmin loads the session and exits unless it carries the admin flag.
func (a *app) requireAdmin() (*model.Session, api.TenantAuth) {
	sess, tenant := a.requireSession()
	if !sess.IsAdmin {
		fmt.Fprintln(os.Stderr, "this command requires an administrator account")
		os.Exit(1)
	}
	return sess, tenant
}

func cmdAdminStats(ctx context.Context, a *app) {
	a.requireAdmin()
	stats, err := a.client.AdminStats(ctx)
	if err != nil {
		fail(err)
	}
	fmt.Printf("companies: %d\n", stats.CompanyCount)
	for _, row := range stats.UsersPerCompany {
		name := row.Name
		if name == "" {
			name = row.CompanyID
		}
		fmt.Printf("  %-30s %d users\n", name, row.UserCount)
	}
}

func cmdAdminCompanies(ctx context.Context, a *app) {
	a.requireAdmin()
	companies, err := a.client.CompaniesForSelect(ctx)
	if err != nil {
		fail(err)
	}
	for _, c := range companies {
		fmt.Printf("%s  %s\n", c.ID, c.Name)
	}
}

func cmdAdminCompanyAdd(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("admin-company-add", flag.ExitOnError)
	name := fs.String("name", "", "company name")
	_ = fs.Parse(args)
	if *name == "" {
		fmt.Fprintln(os.Stderr, "need -name")
		os.Exit(1)
	}
	a.requireAdmin()

	company, err := a.client.CreateCompany(ctx, *name)
	if err != nil {
		fail(err)
	}
	fmt.Printf("created %s (%s)\n", company.Name, company.ID)
}

func cmdAdminUserAdd(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("admin-user-add", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("p", "", "initial password")
	name := fs.String("name", "", "display name")
	companyID := fs.String("company", "", "company id")
	roles := fs.String("roles", "", "comma-separated roles")
	_ = fs.Parse(args)
	if *email == "" || *password == "" || *companyID == "" {
		fmt.Fprintln(os.Stderr, "need -email, -p and -company")
		os.Exit(1)
	}
	a.requireAdmin()

	in := api.CreateUserInput{
		Email:     *email,
		Password:  *password,
		Name:      *name,
		CompanyID: *companyID,
	}
	if *roles != "" {
		in.Roles = strings.Split(*roles, ",")
	}
	user, err := a.client.CreateUser(ctx, in)
	if err != nil {
		fail(err)
	}
	fmt.Printf("created %s (%s)\n", user.Email, user.ID)
}

func cmdAdminUsers(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("admin-users", flag.ExitOnError)
	companyID := fs.String("company", "", "company id")
	_ = fs.Parse(args)
	if *companyID == "" {
		fmt.Fprintln(os.Stderr, "need -company")
		os.Exit(1)
	}
	_, tenant := a.requireAdmin()

	users, err := a.client.UsersByCompany(ctx, tenant, *companyID, 100, 0)
	if err != nil {
		fail(err)
	}
	for _, u := range users {
		active := ""
		if !u.IsActive {
			active = "  (inactive)"
		}
		fmt.Printf("%s  %-30s %s%s\n", u.ID, u.Email, u.Name, active)
	}
}
