package api

import (
	"context"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	CompanyID   string `json:"company_id"`
}

// Login posts credentials and returns the issued bearer token. The token is
// never attached to this request. Some gateway versions respond with "token"
// instead of "access_token"; both are accepted.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	err := c.do(ctx, requestSpec{
		method:   "POST",
		endpoint: loginEndpoint,
		body:     loginRequest{Email: email, Password: password},
		noAuth:   true,
	}, &resp)
	if err != nil {
		return "", err
	}
	token := resp.AccessToken
	if token == "" {
		token = resp.Token
	}
	if token == "" {
		return "", &Error{Status: 500, Message: "login succeeded but no token was returned"}
	}
	return token, nil
}
