// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"

	"github.com/cloister-systems/cloister/gate"
	"github.com/cloister-systems/cloister/lib/codec"
	"github.com/cloister-systems/cloister/policy"
)

// Register wires every gate operation onto the server.
func Register(server *SocketServer, g *gate.Gate) {
	server.Handle("challenge", func(ctx context.Context, raw []byte) (any, error) {
		challenge, err := g.Auth().IssueChallenge()
		if err != nil {
			return nil, err
		}
		return challengeResponse{Challenge: challenge}, nil
	})

	server.Handle("authenticate", func(ctx context.Context, raw []byte) (any, error) {
		var request authenticateRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		token, session, err := g.Auth().Authenticate(request.KeyID, request.Challenge, request.Signature, "local", request.Descriptor)
		if err != nil {
			return nil, err
		}
		return authenticateResponse{Token: token, Expiry: session.Expiry}, nil
	})

	server.Handle("session.verify", func(ctx context.Context, raw []byte) (any, error) {
		var request sessionRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		session, id, err := g.Auth().VerifySession(request.Token)
		if err != nil {
			return nil, err
		}
		return sessionVerifyResponse{
			KeyID:  id.KeyID,
			Role:   string(id.Role),
			Name:   id.Name,
			Expiry: session.Expiry,
		}, nil
	})

	server.Handle("session.refresh", func(ctx context.Context, raw []byte) (any, error) {
		var request sessionRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		session, err := g.Auth().RefreshSession(request.Token)
		if err != nil {
			return nil, err
		}
		return sessionRefreshResponse{Expiry: session.Expiry}, nil
	})

	server.Handle("session.revoke", func(ctx context.Context, raw []byte) (any, error) {
		var request sessionRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		return nil, g.Auth().RevokeSession(request.Token)
	})

	server.Handle("dataset.upload", func(ctx context.Context, raw []byte) (any, error) {
		var request datasetUploadRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		pol, err := policy.Parse(request.Policy)
		if err != nil {
			return nil, err
		}
		return nil, g.UploadDataset(ctx, request.Token, request.Name, request.Frame, pol)
	})

	server.Handle("plan.submit", func(ctx context.Context, raw []byte) (any, error) {
		var request planSubmitRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		planID, err := g.SubmitPlan(ctx, request.Token, &request.Plan)
		if err != nil {
			return nil, err
		}
		return planSubmitResponse{PlanID: planID}, nil
	})

	server.Handle("release.request", func(ctx context.Context, raw []byte) (any, error) {
		var request releaseRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		return g.RequestRelease(ctx, request.Token, request.PlanID)
	})

	server.Handle("review.list", func(ctx context.Context, raw []byte) (any, error) {
		var request reviewListRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		tickets, err := g.PendingReviews(request.Token)
		if err != nil {
			return nil, err
		}
		return reviewListResponse{Tickets: tickets}, nil
	})

	server.Handle("review.resolve", func(ctx context.Context, raw []byte) (any, error) {
		var request reviewResolveRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		return nil, g.ResolveReview(request.Token, request.TicketID, request.Accept)
	})
}
