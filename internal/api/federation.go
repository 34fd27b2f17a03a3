package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/joss/fedcli/internal/domain"
)

// ─── Clubs ───────────────────────────────────────────────────────────

// CreateClub registers a club and its first manager.
func (c *Client) CreateClub(ctx context.Context, in domain.CreateClub) (*domain.Club, error) {
	var club domain.Club
	if err := c.do(ctx, http.MethodPost, "club/create", in, &club); err != nil {
		return nil, err
	}
	return &club, nil
}

func (c *Client) Club(ctx context.Context, id string) (*domain.Club, error) {
	var club domain.Club
	if err := c.do(ctx, http.MethodGet, "club/"+url.PathEscape(id), nil, &club); err != nil {
		return nil, err
	}
	return &club, nil
}

func (c *Client) ApproveClub(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "club/approve/"+url.PathEscape(id), nil, nil)
}

// ClubsToApprove lists clubs whose affiliation request is pending.
func (c *Client) ClubsToApprove(ctx context.Context) ([]domain.Club, error) {
	var clubs []domain.Club
	if err := c.do(ctx, http.MethodGet, "club/to-approve", nil, &clubs); err != nil {
		return nil, err
	}
	return clubs, nil
}

// ─── Events ──────────────────────────────────────────────────────────

func (c *Client) CreateEvent(ctx context.Context, in domain.CreateEvent) (*domain.Event, error) {
	var ev domain.Event
	if err := c.do(ctx, http.MethodPost, "event/create", in, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) Events(ctx context.Context) ([]domain.Event, error) {
	var evs []domain.Event
	if err := c.do(ctx, http.MethodGet, "event/all", nil, &evs); err != nil {
		return nil, err
	}
	return evs, nil
}

// Enroll registers an athlete to an event discipline.
func (c *Client) Enroll(ctx context.Context, in domain.CreateEnrollment) (*domain.Enrollment, error) {
	var e domain.Enrollment
	if err := c.do(ctx, http.MethodPost, "event/enroll", in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ─── Athletes ────────────────────────────────────────────────────────

func (c *Client) CreateAthlete(ctx context.Context, in domain.CreateUser) (*domain.Athlete, error) {
	in.Role = domain.RoleAthlete
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var a domain.Athlete
	if err := c.do(ctx, http.MethodPost, "athlete/create", in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) ApproveAthlete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "athlete/approve/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AthletesToApprove(ctx context.Context) ([]domain.Athlete, error) {
	var out []domain.Athlete
	if err := c.do(ctx, http.MethodGet, "athlete/to-approve", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
