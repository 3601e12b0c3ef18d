// ABOUTME: Admin dashboard surfaces: users, admins, roles, banner, activity logs
// ABOUTME: Thin typed wrappers; permission gating happens at the console layer

package api

import (
	"context"
	"net/http"
	"strconv"
)

// DashboardStats is the landing-page stat card data.
type DashboardStats struct {
	AdminUsers  int `json:"adminUsersCount"`
	ClientUsers int `json:"clientUsersCount"`
}

// dashboardResponse mirrors the endpoint's nested wire shape.
type dashboardResponse struct {
	Data struct {
		StatCards DashboardStats `json:"statCardData"`
	} `json:"data"`
}

// FetchDashboardStats fetches the dashboard landing-page counters.
func (c *Client) FetchDashboardStats(ctx context.Context) (*DashboardStats, error) {
	var out dashboardResponse
	if err := c.getJSON(ctx, "/api/admin/dashboard", &out); err != nil {
		return nil, err
	}
	return &out.Data.StatCards, nil
}

// ListUsers fetches the managed non-admin accounts.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.getJSON(ctx, "/api/admin/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAdmins fetches the admin accounts.
func (c *Client) ListAdmins(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.getJSON(ctx, "/api/admin/users/admins", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminUserRequest carries the create/update fields for an admin account.
type AdminUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`
}

// CreateAdmin creates an admin account. 422 field errors surface as
// *ValidationError for inline display.
func (c *Client) CreateAdmin(ctx context.Context, req AdminUserRequest) (*User, error) {
	var out User
	if err := c.sendJSON(ctx, http.MethodPost, "/api/admin/users", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAdmin updates an admin account.
func (c *Client) UpdateAdmin(ctx context.Context, userID string, req AdminUserRequest) (*User, error) {
	var out User
	if err := c.sendJSON(ctx, http.MethodPatch, "/api/admin/users/"+userID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.delete(ctx, "/api/admin/users/"+userID)
}

// RoleOptions fetches the role dropdown data used by the assignment form.
func (c *Client) RoleOptions(ctx context.Context) ([]RoleOption, error) {
	var out []RoleOption
	if err := c.getJSON(ctx, "/api/admin/dropdowns/roles", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AssignRole sets a user's role.
func (c *Client) AssignRole(ctx context.Context, userID, role string) error {
	in := map[string]string{"role": role}
	return c.sendJSON(ctx, http.MethodPatch, "/api/admin/users/"+userID, in, nil)
}

// GetBanner fetches the CTA feature banner.
func (c *Client) GetBanner(ctx context.Context) (*Banner, error) {
	var out Banner
	if err := c.getJSON(ctx, "/api/cta-banner", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBanner updates the CTA feature banner.
func (c *Client) UpdateBanner(ctx context.Context, banner Banner) error {
	return c.sendJSON(ctx, http.MethodPatch, "/api/admin/cta-banner", banner, nil)
}

// ActivityLogs fetches one page of the activity-log browser.
func (c *Client) ActivityLogs(ctx context.Context, q ActivityLogQuery) (*ActivityLogPage, error) {
	params := map[string]string{
		"search": q.Search,
		"action": q.Action,
	}
	if q.Page > 0 {
		params["page"] = strconv.Itoa(q.Page)
	}
	if q.PerPage > 0 {
		params["per_page"] = strconv.Itoa(q.PerPage)
	}

	var out ActivityLogPage
	if err := c.getJSON(ctx, "/api/admin/activity-logs"+queryValues(params), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearActivityLogs wipes the activity log.
func (c *Client) ClearActivityLogs(ctx context.Context) error {
	return c.delete(ctx, "/api/admin/activity-logs/clear")
}
