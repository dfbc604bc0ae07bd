package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
)

// Login authenticates and stores the token in the session.
func (c *Client) Login(ctx context.Context, email, password string) (domain.User, error) {
	return c.authenticate(ctx, "login", "/user/login", api.LoginRequest{Email: email, Password: password})
}

// Signup registers a new account and signs it in.
func (c *Client) Signup(ctx context.Context, username, email, password string) (domain.User, error) {
	return c.authenticate(ctx, "signup", "/user/signup", api.SignupRequest{Username: username, Email: email, Password: password})
}

func (c *Client) authenticate(ctx context.Context, op, path string, body any) (domain.User, error) {
	raw, err := c.do(ctx, op, request{method: http.MethodPost, path: path, body: body})
	if err != nil {
		return domain.User{}, err
	}
	resp, err := decode[api.AuthResponse](op, raw)
	if err != nil {
		return domain.User{}, err
	}
	user := resp.User.ToUser()
	if err := c.session.Login(resp.Token, user); err != nil {
		return domain.User{}, err
	}
	u, _ := c.session.User()
	return u, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]api.UserDTO, error) {
	raw, err := c.do(ctx, "list users", request{method: http.MethodGet, path: "/user/users", auth: true})
	if err != nil {
		return nil, err
	}
	resp, err := decode[api.UsersResponse]("list users", raw)
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete user", request{method: http.MethodDelete, path: "/user/users/" + url.PathEscape(id), auth: true})
	return err
}
