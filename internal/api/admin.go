package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	gocache "github.com/patrickmn/go-cache"

	"atenex-cli/internal/model"
)

const (
	cacheKeyAdminStats    = "admin_stats"
	cacheKeyCompanySelect = "company_select"
)

type adminStatsPayload struct {
	CompanyCount    int `json:"company_count"`
	UsersPerCompany []struct {
		CompanyID string  `json:"company_id"`
		Name      *string `json:"name"`
		UserCount int     `json:"user_count"`
	} `json:"users_per_company"`
}

// AdminStats fetches platform-wide usage statistics. Results are cached for
// the admin cache TTL.
func (c *Client) AdminStats(ctx context.Context) (model.AdminStats, error) {
	if v, ok := c.adminCache.Get(cacheKeyAdminStats); ok {
		return v.(model.AdminStats), nil
	}

	var resp adminStatsPayload
	err := c.do(ctx, requestSpec{
		method:   "GET",
		endpoint: "/api/v1/admin/stats",
	}, &resp)
	if err != nil {
		return model.AdminStats{}, err
	}

	out := model.AdminStats{CompanyCount: resp.CompanyCount}
	for _, row := range resp.UsersPerCompany {
		name := ""
		if row.Name != nil {
			name = *row.Name
		}
		out.UsersPerCompany = append(out.UsersPerCompany, model.CompanyUserCount{
			CompanyID: row.CompanyID,
			Name:      name,
			UserCount: row.UserCount,
		})
	}
	c.adminCache.Set(cacheKeyAdminStats, out, gocache.DefaultExpiration)
	return out, nil
}

type companyPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CompaniesForSelect lists companies for selection widgets. Results are
// cached; CreateCompany invalidates the cache.
func (c *Client) CompaniesForSelect(ctx context.Context) ([]model.Company, error) {
	if v, ok := c.adminCache.Get(cacheKeyCompanySelect); ok {
		return v.([]model.Company), nil
	}

	var resp []companyPayload
	err := c.do(ctx, requestSpec{
		method:   "GET",
		endpoint: "/api/v1/admin/companies/select",
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]model.Company, 0, len(resp))
	for _, p := range resp {
		out = append(out, model.Company{ID: p.ID, Name: p.Name})
	}
	c.adminCache.Set(cacheKeyCompanySelect, out, gocache.DefaultExpiration)
	return out, nil
}

type createCompanyRequest struct {
	Name string `json:"name"`
}

// CreateCompany registers a new tenant.
func (c *Client) CreateCompany(ctx context.Context, name string) (model.Company, error) {
	if name == "" {
		return model.Company{}, &Error{Status: http.StatusBadRequest, Message: "a company name is required"}
	}

	var resp companyPayload
	err := c.do(ctx, requestSpec{
		method:   "POST",
		endpoint: "/api/v1/admin/companies",
		body:     createCompanyRequest{Name: name},
	}, &resp)
	if err != nil {
		return model.Company{}, err
	}

	c.adminCache.Delete(cacheKeyCompanySelect)
	return model.Company{ID: resp.ID, Name: resp.Name, CreatedAt: parseStatsTime(resp.CreatedAt)}, nil
}

// CreateUserInput is the admin payload for provisioning an account.
type CreateUserInput struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Name      string   `json:"name"`
	CompanyID string   `json:"company_id"`
	Roles     []string `json:"roles,omitempty"`
}

type userPayload struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      *string  `json:"name"`
	CompanyID *string  `json:"company_id"`
	IsActive  *bool    `json:"is_active,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

func (p userPayload) toModel() model.User {
	out := model.User{
		ID:        p.ID,
		Email:     p.Email,
		CreatedAt: parseStatsTime(p.CreatedAt),
		Roles:     p.Roles,
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.CompanyID != nil {
		out.CompanyID = *p.CompanyID
	}
	if p.IsActive != nil {
		out.IsActive = *p.IsActive
	} else {
		out.IsActive = true
	}
	return out
}

// CreateUser provisions a user in a company.
func (c *Client) CreateUser(ctx context.Context, in CreateUserInput) (model.User, error) {
	if in.Email == "" || in.Password == "" || in.CompanyID == "" {
		return model.User{}, &Error{Status: http.StatusBadRequest, Message: "email, password and company id are required"}
	}

	var resp userPayload
	err := c.do(ctx, requestSpec{
		method:   "POST",
		endpoint: "/api/v1/admin/users",
		body:     in,
	}, &resp)
	if err != nil {
		return model.User{}, err
	}
	return resp.toModel(), nil
}

// UsersByCompany lists a company's accounts one page at a time.
func (c *Client) UsersByCompany(ctx context.Context, tenant TenantAuth, companyID string, limit, offset int) ([]model.User, error) {
	if companyID == "" {
		return nil, &Error{Status: http.StatusBadRequest, Message: "a company id is required"}
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var resp []userPayload
	err := c.do(ctx, requestSpec{
		method:   "GET",
		endpoint: "/api/v1/admin/users/by_company/" + companyID,
		query:    q,
		tenant:   &tenant,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]model.User, 0, len(resp))
	for _, p := range resp {
		out = append(out, p.toModel())
	}
	return out, nil
}
