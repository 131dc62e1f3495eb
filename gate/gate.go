// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate orchestrates Cloister's operations: it is the layer the
// transport calls into, and the only place the auth, plan, policy,
// review, datastore, and engine pieces meet.
//
// The gate owns the decision sequence for a release: evaluate every
// touched dataset's policy, release automatically when all are safe,
// reject outright when any unsafe policy says reject, and otherwise
// park the request for owner review and block until a verdict wins.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloister-systems/cloister/auth"
	"github.com/cloister-systems/cloister/datastore"
	"github.com/cloister-systems/cloister/engine"
	"github.com/cloister-systems/cloister/identity"
	"github.com/cloister-systems/cloister/plan"
	"github.com/cloister-systems/cloister/policy"
	"github.com/cloister-systems/cloister/review"
)

var (
	// ErrForbidden means the session's role does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNoSuchPlan means the plan ID matches no recorded submission.
	ErrNoSuchPlan = errors.New("no such plan")
)

// ReleaseStatus is the outcome of a release request.
type ReleaseStatus string

const (
	// StatusReleased means the result bytes accompany the response.
	StatusReleased ReleaseStatus = "released"
	// StatusRejected means a policy with reject handling refused the
	// request.
	StatusRejected ReleaseStatus = "rejected"
	// StatusDenied means an owner reviewed the request and refused it.
	StatusDenied ReleaseStatus = "denied"
	// StatusTimedOut means no owner ruled within the review window.
	StatusTimedOut ReleaseStatus = "timed_out"
)

// ReleaseResult is the answer to RequestRelease.
type ReleaseResult struct {
	Status ReleaseStatus `cbor:"status"`

	// Data is the materialized result, present only when released.
	Data []byte `cbor:"data,omitempty"`

	// Reasons are the policy failures behind a rejected or reviewed
	// request.
	Reasons []string `cbor:"reasons,omitempty"`

	// ResolverID is the owner who ruled, for reviewed requests.
	ResolverID string `cbor:"resolver_id,omitempty"`
}

type submission struct {
	plan         *plan.Plan
	contribution plan.Contribution
	handle       engine.Handle
	submitterID  string
}

// Gate wires the subsystems together. Safe for concurrent use.
type Gate struct {
	authenticator *auth.Authenticator
	store         *datastore.Store
	reviews       *review.Coordinator
	runner        engine.Runner
	logger        *slog.Logger

	mu          sync.Mutex
	submissions map[string]*submission
}

// New assembles a gate. A nil logger discards.
func New(authenticator *auth.Authenticator, store *datastore.Store, reviews *review.Coordinator, runner engine.Runner, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{
		authenticator: authenticator,
		store:         store,
		reviews:       reviews,
		runner:        runner,
		logger:        logger,
		submissions:   make(map[string]*submission),
	}
}

// Auth exposes the authenticator for the transport's auth actions.
func (g *Gate) Auth() *auth.Authenticator {
	return g.authenticator
}

// session resolves a token and optionally requires a role.
func (g *Gate) session(token []byte, role identity.Role) (auth.Session, identity.Identity, error) {
	session, id, err := g.authenticator.VerifySession(token)
	if err != nil {
		return auth.Session{}, identity.Identity{}, err
	}
	if role != "" && id.Role != role {
		return auth.Session{}, identity.Identity{}, fmt.Errorf("%w: operation requires the %s role", ErrForbidden, role)
	}
	return session, id, nil
}

// UploadDataset stores a new dataset under the owner's key with its
// policy bound for life. Owner role required.
func (g *Gate) UploadDataset(ctx context.Context, token []byte, name string, frame []byte, pol *policy.Policy) error {
	_, owner, err := g.session(token, identity.RoleOwner)
	if err != nil {
		return err
	}
	if err := g.store.Put(ctx, name, owner.KeyID, pol, frame); err != nil {
		return err
	}
	g.logger.Info("dataset uploaded", "dataset", name, "owner", owner.Name)
	return nil
}

// SubmitPlan validates and executes a plan, recording it for a later
// release request. Returns the plan's content address. User role
// required.
func (g *Gate) SubmitPlan(ctx context.Context, token []byte, p *plan.Plan) (string, error) {
	_, user, err := g.session(token, identity.RoleUser)
	if err != nil {
		return "", err
	}

	if err := p.Validate(); err != nil {
		return "", err
	}
	for _, dataset := range p.Datasets() {
		if _, err := g.store.Get(ctx, dataset); err != nil {
			if errors.Is(err, datastore.ErrNotFound) {
				return "", fmt.Errorf("%w: %s", plan.ErrUnknownDataset, dataset)
			}
			return "", err
		}
	}

	planID, err := p.ID()
	if err != nil {
		return "", err
	}

	handle, err := g.runner.Execute(ctx, p)
	if err != nil {
		return "", fmt.Errorf("executing plan %s: %w", planID, err)
	}

	g.mu.Lock()
	if previous, ok := g.submissions[planID]; ok {
		// Identical plan resubmitted; the fresh execution supersedes.
		g.runner.Release(previous.handle)
	}
	g.submissions[planID] = &submission{
		plan:         p,
		contribution: p.Annotate(),
		handle:       handle,
		submitterID:  user.KeyID,
	}
	g.mu.Unlock()

	g.logger.Info("plan submitted", "plan", planID, "user", user.Name, "datasets", p.Datasets())
	return planID, nil
}

// RequestRelease asks for a submitted plan's results. Only the
// submitting user may ask. The call blocks while an owner review is
// pending; cancelling ctx withdraws the request.
func (g *Gate) RequestRelease(ctx context.Context, token []byte, planID string) (ReleaseResult, error) {
	_, user, err := g.session(token, identity.RoleUser)
	if err != nil {
		return ReleaseResult{}, err
	}

	g.mu.Lock()
	sub, ok := g.submissions[planID]
	g.mu.Unlock()
	if !ok {
		return ReleaseResult{}, fmt.Errorf("%w: %s", ErrNoSuchPlan, planID)
	}
	if sub.submitterID != user.KeyID {
		return ReleaseResult{}, fmt.Errorf("%w: plan %s was submitted by another user", ErrForbidden, planID)
	}

	verdictRequest := policy.Request{
		Plan:         sub.plan,
		Contribution: sub.contribution,
		RequesterID:  user.KeyID,
	}

	var reasons []string
	var unsafeDatasets []string
	mustReject := false
	for _, name := range sub.plan.Datasets() {
		dataset, err := g.store.Get(ctx, name)
		if err != nil {
			return ReleaseResult{}, err
		}
		verdict := dataset.Policy.Evaluate(verdictRequest)
		if verdict.Safe {
			continue
		}
		unsafeDatasets = append(unsafeDatasets, name)
		reasons = append(reasons, verdict.Failures...)
		if dataset.Policy.Unsafe == policy.HandlingReject {
			mustReject = true
		}
	}

	if len(unsafeDatasets) == 0 {
		return g.materialize(ctx, sub, planID, "")
	}
	if mustReject {
		g.runner.Release(sub.handle)
		g.forget(planID)
		g.logger.Info("release rejected", "plan", planID, "user", user.Name, "reasons", reasons)
		return ReleaseResult{Status: StatusRejected, Reasons: reasons}, nil
	}

	return g.awaitReview(ctx, sub, planID, user, unsafeDatasets, reasons)
}

func (g *Gate) awaitReview(ctx context.Context, sub *submission, planID string, user identity.Identity, unsafeDatasets, reasons []string) (ReleaseResult, error) {
	ticket, err := g.reviews.Open(strings.Join(unsafeDatasets, ","), planID, user.KeyID, reasons)
	if err != nil {
		return ReleaseResult{}, err
	}
	g.logger.Info("release pending review",
		"plan", planID,
		"user", user.Name,
		"ticket", ticket.ID,
		"datasets", unsafeDatasets,
	)

	resolution, err := g.reviews.Await(ctx, ticket.ID)
	if err != nil {
		// Withdrawn (requester gone); free the results.
		g.runner.Release(sub.handle)
		g.forget(planID)
		return ReleaseResult{}, err
	}

	switch resolution.Outcome {
	case review.OutcomeAccepted:
		g.logger.Info("release accepted by owner", "plan", planID, "ticket", ticket.ID, "owner", resolution.ResolverID)
		return g.materialize(ctx, sub, planID, resolution.ResolverID)
	case review.OutcomeDenied:
		g.runner.Release(sub.handle)
		g.forget(planID)
		g.logger.Info("release denied by owner", "plan", planID, "ticket", ticket.ID, "owner", resolution.ResolverID)
		return ReleaseResult{Status: StatusDenied, Reasons: reasons, ResolverID: resolution.ResolverID}, nil
	default:
		g.runner.Release(sub.handle)
		g.forget(planID)
		g.logger.Info("release timed out in review", "plan", planID, "ticket", ticket.ID)
		return ReleaseResult{Status: StatusTimedOut, Reasons: reasons}, nil
	}
}

func (g *Gate) materialize(ctx context.Context, sub *submission, planID, resolverID string) (ReleaseResult, error) {
	data, err := g.runner.Materialize(ctx, sub.handle)
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("materializing plan %s: %w", planID, err)
	}
	g.runner.Release(sub.handle)
	g.forget(planID)
	return ReleaseResult{Status: StatusReleased, Data: data, ResolverID: resolverID}, nil
}

func (g *Gate) forget(planID string) {
	g.mu.Lock()
	delete(g.submissions, planID)
	g.mu.Unlock()
}

// PendingReviews lists open review tickets. Owner role required.
func (g *Gate) PendingReviews(token []byte) ([]review.Ticket, error) {
	if _, _, err := g.session(token, identity.RoleOwner); err != nil {
		return nil, err
	}
	return g.reviews.Pending(), nil
}

// ResolveReview records an owner's verdict on a pending review. Owner
// role required; the resolver is recorded on the resolution.
func (g *Gate) ResolveReview(token []byte, ticketID string, accept bool) error {
	_, owner, err := g.session(token, identity.RoleOwner)
	if err != nil {
		return err
	}
	outcome := review.OutcomeDenied
	if accept {
		outcome = review.OutcomeAccepted
	}
	if err := g.reviews.Resolve(ticketID, outcome, owner.KeyID); err != nil {
		return err
	}
	g.logger.Info("review resolved", "ticket", ticketID, "outcome", outcome, "owner", owner.Name)
	return nil
}
