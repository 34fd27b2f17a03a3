package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/joss/fedcli/internal/domain"
)

func (c *Client) getUser(ctx context.Context, path string) (domain.User, error) {
	data, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	u, err := domain.UnmarshalUser(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return u, nil
}

// UserByEmail looks a user up by e-mail address.
func (c *Client) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	return c.getUser(ctx, "user/email/"+url.PathEscape(email))
}

// User fetches a user by id.
func (c *Client) User(ctx context.Context, id string) (domain.User, error) {
	return c.getUser(ctx, "user/"+url.PathEscape(id))
}

// UsersByRole lists users with the given role.
func (c *Client) UsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	path := "user/find-by-role/" + url.PathEscape(string(role))
	data, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	users, err := domain.UnmarshalUsers(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return users, nil
}

// CreateUser registers a user of any role.
func (c *Client) CreateUser(ctx context.Context, in domain.CreateUser) (domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	data, err := c.send(ctx, http.MethodPost, "user/create", in)
	if err != nil {
		return nil, err
	}
	return domain.UnmarshalUser(data)
}

// UpdateUser patches an existing user with the fields of u.
func (c *Client) UpdateUser(ctx context.Context, u domain.User) (domain.User, error) {
	id := u.Base().ID
	if id == "" {
		return nil, fmt.Errorf("update user: missing id")
	}
	body, err := domain.MarshalUser(u)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	data, err := c.send(ctx, http.MethodPatch, "user/update/"+url.PathEscape(id), rawJSON(body))
	if err != nil {
		return nil, err
	}
	return domain.UnmarshalUser(data)
}

// ChangePassword replaces the password of user id.
func (c *Client) ChangePassword(ctx context.Context, id string, in domain.ChangePassword) error {
	_, err := c.send(ctx, http.MethodPost, "user/change-password/"+url.PathEscape(id), in)
	return err
}

// rawJSON is pre-encoded JSON that marshals to itself.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }
