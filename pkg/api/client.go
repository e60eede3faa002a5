// Package api is the typed endpoint client for user management,
// profiles, and lookup data. It sits on top of the gateway and never
// talks to the wire directly.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Doer is the gateway surface the endpoint client needs.
type Doer interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Patch(ctx context.Context, path string, body any) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
}

// Client exposes the backend's user management endpoints.
type Client struct {
	gw Doer
}

// New creates an endpoint client over the gateway.
func New(gw Doer) *Client {
	return &Client{gw: gw}
}

// User is an account as the admin endpoints report it.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Timezone string   `json:"timezone,omitempty"`
}

// Profile holds the user-editable account fields.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// NewUser is the payload for creating an account.
type NewUser struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
	Timezone string   `json:"timezone,omitempty"`
}

// UserUpdate is the payload for patching an account. Zero-valued
// fields are omitted and left unchanged.
type UserUpdate struct {
	Username string `json:"username,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// RoleChange adds and removes role grants in one call.
type RoleChange struct {
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

func userPath(id string, suffix string) string {
	return "/api/users/" + url.PathEscape(id) + suffix
}

// Profile fetches the caller's editable profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	raw, err := c.gw.Get(ctx, "/api/profile")
	if err != nil {
		return nil, err
	}
	return decode[Profile](raw, "profile")
}

// UpdateProfile saves the caller's editable profile and returns the
// stored version.
func (c *Client) UpdateProfile(ctx context.Context, profile Profile) (*Profile, error) {
	raw, err := c.gw.Put(ctx, "/api/profile", profile)
	if err != nil {
		return nil, err
	}
	return decode[Profile](raw, "profile")
}

// Users lists all accounts. Admin-gated server-side.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	raw, err := c.gw.Get(ctx, "/api/users")
	if err != nil {
		return nil, err
	}
	var users []User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("decode user list: %w", err)
	}
	return users, nil
}

// User fetches one account by ID.
func (c *Client) User(ctx context.Context, id string) (*User, error) {
	raw, err := c.gw.Get(ctx, userPath(id, ""))
	if err != nil {
		return nil, err
	}
	return decode[User](raw, "user")
}

// CreateUser creates an account and returns it.
func (c *Client) CreateUser(ctx context.Context, user NewUser) (*User, error) {
	raw, err := c.gw.Post(ctx, "/api/users", user)
	if err != nil {
		return nil, err
	}
	return decode[User](raw, "user")
}

// UpdateUser patches an account and returns the stored version.
func (c *Client) UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error) {
	raw, err := c.gw.Patch(ctx, userPath(id, ""), update)
	if err != nil {
		return nil, err
	}
	return decode[User](raw, "user")
}

// UpdatePassword changes an account password, proving knowledge of the
// current one.
func (c *Client) UpdatePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	body := map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}
	_, err := c.gw.Put(ctx, userPath(id, "/password"), body)
	return err
}

// ResetPassword triggers an admin-side password reset and returns the
// generated password. The server reports it exactly once.
func (c *Client) ResetPassword(ctx context.Context, id string) (string, error) {
	raw, err := c.gw.Post(ctx, userPath(id, "/reset-password"), struct{}{})
	if err != nil {
		return "", err
	}
	var payload struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode reset response: %w", err)
	}
	return payload.Password, nil
}

// UpdateUserRoles grants and revokes roles on an account.
func (c *Client) UpdateUserRoles(ctx context.Context, id string, change RoleChange) (*User, error) {
	raw, err := c.gw.Patch(ctx, userPath(id, "/role"), change)
	if err != nil {
		return nil, err
	}
	return decode[User](raw, "user")
}

// Timezones lists the timezone names offered on the profile form.
func (c *Client) Timezones(ctx context.Context) ([]string, error) {
	raw, err := c.gw.Get(ctx, "/api/timezones")
	if err != nil {
		return nil, err
	}
	var zones []string
	if err := json.Unmarshal(raw, &zones); err != nil {
		return nil, fmt.Errorf("decode timezone list: %w", err)
	}
	return zones, nil
}

func decode[T any](raw json.RawMessage, what string) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return &v, nil
}
