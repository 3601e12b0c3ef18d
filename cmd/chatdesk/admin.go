// ABOUTME: Admin subcommands: users, admin accounts, roles, banner, activity logs
// ABOUTME: Every surface checks the capability gate before issuing requests

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/opsdesk/chatdesk/internal/api"
	"github.com/opsdesk/chatdesk/internal/perm"
)

var errNoAccess = errors.New("your role has no access to this surface")

// cmdStats shows the dashboard landing-page counters. Open to any
// authenticated operator; the backend enforces the session.
func (a *app) cmdStats(ctx context.Context) error {
	stats, err := a.client.FetchDashboardStats(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return errors.New("session expired, run login again")
		}
		return err
	}
	a.render.Dashboard(*stats)
	return nil
}

func (a *app) cmdUsers(ctx context.Context, args []string) error {
	gate, err := a.gate(ctx)
	if err != nil {
		return err
	}
	if !gate.Can(perm.UserView) {
		return errNoAccess
	}

	users, err := a.client.ListUsers(ctx)
	if err != nil {
		return err
	}
	a.render.Users(users)
	return nil
}

func (a *app) cmdAdmins(ctx context.Context, args []string) error {
	gate, err := a.gate(ctx)
	if err != nil {
		return err
	}

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		if !gate.Can(perm.UserView) {
			return errNoAccess
		}
		admins, err := a.client.ListAdmins(ctx)
		if err != nil {
			return err
		}
		a.render.Users(admins)
		return nil

	case "add":
		if !gate.Can(perm.UserManage) {
			return errNoAccess
		}
		req, err := promptAdminUser()
		if err != nil {
			return err
		}
		created, err := a.client.CreateAdmin(ctx, req)
		if err != nil {
			return err
		}
		color.Green("Created admin %s (%s)\n", created.Name, created.ID)
		return nil

	case "rm":
		if !gate.Can(perm.UserManage) {
			return errNoAccess
		}
		if len(args) != 1 {
			return errors.New("usage: chatdesk admins rm <user-id>")
		}
		if err := a.client.DeleteUser(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil

	default:
		return fmt.Errorf("unknown admins subcommand %q", sub)
	}
}

func (a *app) cmdRoles(ctx context.Context, args []string) error {
	gate, err := a.gate(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		if !gate.Can(perm.RoleView) {
			return errNoAccess
		}
		roles, err := a.client.RoleOptions(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Available roles:")
		for _, r := range roles {
			fmt.Printf("  %-12s %s\n", r.ID, r.Name)
		}
		return nil
	}

	if len(args) != 2 {
		return errors.New("usage: chatdesk roles [<user-id> <role>]")
	}
	if !gate.Can(perm.RoleAssign) {
		return errNoAccess
	}
	if err := a.client.AssignRole(ctx, args[0], args[1]); err != nil {
		return err
	}
	color.Green("Assigned role %s to %s\n", args[1], args[0])
	return nil
}

func (a *app) cmdBanner(ctx context.Context, args []string) error {
	gate, err := a.gate(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		banner, err := a.client.GetBanner(ctx)
		if err != nil {
			return err
		}
		a.render.Banner(*banner)
		return nil
	}

	if args[0] != "set" {
		return fmt.Errorf("unknown banner subcommand %q", args[0])
	}
	if !gate.Can(perm.BannerManage) {
		return errNoAccess
	}

	banner, err := promptBanner()
	if err != nil {
		return err
	}
	if err := a.client.UpdateBanner(ctx, banner); err != nil {
		return err
	}
	color.Green("Banner updated\n")
	return nil
}

func (a *app) cmdLogs(ctx context.Context, args []string) error {
	gate, err := a.gate(ctx)
	if err != nil {
		return err
	}
	if !gate.Can(perm.ActivityView) {
		return errNoAccess
	}

	if len(args) > 0 && args[0] == "clear" {
		if !gate.Can(perm.UserManage) {
			return errNoAccess
		}
		if err := a.client.ClearActivityLogs(ctx); err != nil {
			return err
		}
		fmt.Println("Activity log cleared.")
		return nil
	}

	q := api.ActivityLogQuery{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-page":
			i++
			if i >= len(args) {
				return errors.New("-page requires a value")
			}
			page, err := strconv.Atoi(args[i])
			if err != nil {
				return fmt.Errorf("parsing -page: %w", err)
			}
			q.Page = page
		case "-search":
			i++
			if i >= len(args) {
				return errors.New("-search requires a value")
			}
			q.Search = args[i]
		case "-action":
			i++
			if i >= len(args) {
				return errors.New("-action requires a value")
			}
			q.Action = args[i]
		default:
			return fmt.Errorf("unknown flag %q", args[i])
		}
	}

	page, err := a.client.ActivityLogs(ctx, q)
	if err != nil {
		return err
	}
	a.render.ActivityLogs(*page)
	return nil
}

func promptAdminUser() (api.AdminUserRequest, error) {
	reader := bufio.NewReader(os.Stdin)
	var req api.AdminUserRequest

	fmt.Print("Name: ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return req, fmt.Errorf("reading name: %w", err)
	}
	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return req, fmt.Errorf("reading email: %w", err)
	}
	fmt.Print("Password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return req, fmt.Errorf("reading password: %w", err)
	}

	req.Name = strings.TrimSpace(name)
	req.Email = strings.TrimSpace(email)
	req.Password = strings.TrimSpace(password)
	return req, nil
}

func promptBanner() (api.Banner, error) {
	reader := bufio.NewReader(os.Stdin)
	var b api.Banner

	fmt.Print("Title: ")
	title, err := reader.ReadString('\n')
	if err != nil {
		return b, fmt.Errorf("reading title: %w", err)
	}
	fmt.Print("Body: ")
	body, err := reader.ReadString('\n')
	if err != nil {
		return b, fmt.Errorf("reading body: %w", err)
	}
	fmt.Print("Link URL (optional): ")
	link, err := reader.ReadString('\n')
	if err != nil {
		return b, fmt.Errorf("reading link: %w", err)
	}
	fmt.Print("Enabled [y/N]: ")
	enabled, err := reader.ReadString('\n')
	if err != nil {
		return b, fmt.Errorf("reading enabled: %w", err)
	}

	b.Title = strings.TrimSpace(title)
	b.Body = strings.TrimSpace(body)
	b.LinkURL = strings.TrimSpace(link)
	b.Enabled = strings.EqualFold(strings.TrimSpace(enabled), "y")
	return b, nil
}
