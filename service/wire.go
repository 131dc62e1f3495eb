// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"time"

	"github.com/cloister-systems/cloister/plan"
	"github.com/cloister-systems/cloister/review"
)

// Request and response shapes for every action. Both the handlers and
// the Client encode these, so the wire format has a single definition.

type challengeRequest struct {
	Action string `cbor:"action"`
}

type challengeResponse struct {
	Challenge []byte `cbor:"challenge"`
}

type authenticateRequest struct {
	Action    string `cbor:"action"`
	KeyID     string `cbor:"key_id"`
	Challenge []byte `cbor:"challenge"`
	Signature []byte `cbor:"signature"`

	// Descriptor is free-form client identification recorded on the
	// session ("cloister/0.1.0").
	Descriptor string `cbor:"descriptor,omitempty"`
}

type authenticateResponse struct {
	Token  []byte    `cbor:"token"`
	Expiry time.Time `cbor:"expiry"`
}

type sessionRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token"`
}

type sessionVerifyResponse struct {
	KeyID  string    `cbor:"key_id"`
	Role   string    `cbor:"role"`
	Name   string    `cbor:"name"`
	Expiry time.Time `cbor:"expiry"`
}

type sessionRefreshResponse struct {
	Expiry time.Time `cbor:"expiry"`
}

type datasetUploadRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token"`
	Name   string `cbor:"name"`
	Frame  []byte `cbor:"frame"`

	// Policy is the owner's JSONC policy document, parsed server-side
	// so the file on the owner's disk is the exact artifact bound to
	// the dataset.
	Policy []byte `cbor:"policy"`
}

type planSubmitRequest struct {
	Action string    `cbor:"action"`
	Token  []byte    `cbor:"token"`
	Plan   plan.Plan `cbor:"plan"`
}

type planSubmitResponse struct {
	PlanID string `cbor:"plan_id"`
}

type releaseRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token"`
	PlanID string `cbor:"plan_id"`
}

type reviewListRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token"`
}

type reviewListResponse struct {
	Tickets []review.Ticket `cbor:"tickets"`
}

type reviewResolveRequest struct {
	Action   string `cbor:"action"`
	Token    []byte `cbor:"token"`
	TicketID string `cbor:"ticket_id"`
	Accept   bool   `cbor:"accept"`
}
