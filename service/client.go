// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cloister-systems/cloister/gate"
	"github.com/cloister-systems/cloister/lib/codec"
	"github.com/cloister-systems/cloister/lib/version"
	"github.com/cloister-systems/cloister/plan"
	"github.com/cloister-systems/cloister/review"
)

// Client speaks the socket protocol. Each call dials a fresh
// connection, matching the one-request-per-connection protocol.
type Client struct {
	socketPath string
}

// NewClient returns a client for the server at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// do sends one request and decodes the response's data field into out
// (which may be nil for actions with no payload). A server-side error
// comes back as a plain error carrying the server's message.
func (c *Client) do(ctx context.Context, request any, out any) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if !response.OK {
		return errors.New(response.Error)
	}
	if out != nil {
		if len(response.Data) == 0 {
			return fmt.Errorf("response has no data")
		}
		if err := codec.Unmarshal(response.Data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// Challenge fetches a fresh authentication challenge.
func (c *Client) Challenge(ctx context.Context) ([]byte, error) {
	var response challengeResponse
	err := c.do(ctx, challengeRequest{Action: "challenge"}, &response)
	return response.Challenge, err
}

// Authenticate redeems a signed challenge for a session token.
func (c *Client) Authenticate(ctx context.Context, keyID string, challenge, signature []byte) ([]byte, time.Time, error) {
	var response authenticateResponse
	err := c.do(ctx, authenticateRequest{
		Action:     "authenticate",
		KeyID:      keyID,
		Challenge:  challenge,
		Signature:  signature,
		Descriptor: "cloister/" + version.Version,
	}, &response)
	return response.Token, response.Expiry, err
}

// SessionInfo describes the session behind a token.
type SessionInfo struct {
	KeyID  string
	Role   string
	Name   string
	Expiry time.Time
}

// VerifySession resolves a token to its session.
func (c *Client) VerifySession(ctx context.Context, token []byte) (SessionInfo, error) {
	var response sessionVerifyResponse
	if err := c.do(ctx, sessionRequest{Action: "session.verify", Token: token}, &response); err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo(response), nil
}

// RefreshSession extends a session and returns its new expiry.
func (c *Client) RefreshSession(ctx context.Context, token []byte) (time.Time, error) {
	var response sessionRefreshResponse
	err := c.do(ctx, sessionRequest{Action: "session.refresh", Token: token}, &response)
	return response.Expiry, err
}

// RevokeSession logs the session out.
func (c *Client) RevokeSession(ctx context.Context, token []byte) error {
	return c.do(ctx, sessionRequest{Action: "session.revoke", Token: token}, nil)
}

// UploadDataset stores a dataset with its JSONC policy document.
func (c *Client) UploadDataset(ctx context.Context, token []byte, name string, frame, policyDocument []byte) error {
	return c.do(ctx, datasetUploadRequest{
		Action: "dataset.upload",
		Token:  token,
		Name:   name,
		Frame:  frame,
		Policy: policyDocument,
	}, nil)
}

// SubmitPlan submits a plan and returns its content address.
func (c *Client) SubmitPlan(ctx context.Context, token []byte, p *plan.Plan) (string, error) {
	var response planSubmitResponse
	err := c.do(ctx, planSubmitRequest{Action: "plan.submit", Token: token, Plan: *p}, &response)
	return response.PlanID, err
}

// RequestRelease asks for a plan's results, blocking through any owner
// review. Cancel ctx to withdraw.
func (c *Client) RequestRelease(ctx context.Context, token []byte, planID string) (gate.ReleaseResult, error) {
	var result gate.ReleaseResult
	err := c.do(ctx, releaseRequest{Action: "release.request", Token: token, PlanID: planID}, &result)
	return result, err
}

// ListReviews lists pending review tickets (owner role).
func (c *Client) ListReviews(ctx context.Context, token []byte) ([]review.Ticket, error) {
	var response reviewListResponse
	err := c.do(ctx, reviewListRequest{Action: "review.list", Token: token}, &response)
	return response.Tickets, err
}

// ResolveReview rules on a pending review (owner role).
func (c *Client) ResolveReview(ctx context.Context, token []byte, ticketID string, accept bool) error {
	return c.do(ctx, reviewResolveRequest{
		Action:   "review.resolve",
		Token:    token,
		TicketID: ticketID,
		Accept:   accept,
	}, nil)
}
