// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package aggsvc provides the HTTP client for aggregation-service endpoints and
// the discovery helper that derives endpoint URLs from on-chain operator metadata.
package aggsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/z"
	"github.com/threshnet/attestor/core"
)

// defaultTimeout bounds individual requests to an aggregation service.
const defaultTimeout = 30 * time.Second

// Client is the HTTP client for one aggregation-service endpoint.
// It implements core.AggregationService.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the aggregation service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Address returns the endpoint base URL.
func (c *Client) Address() string {
	return c.baseURL
}

type thresholdPlanJSON struct {
	Type            string               `json:"type"`
	RequiredSigners uint32               `json:"required_signers,omitempty"`
	ThresholdBps    uint32               `json:"threshold_bps,omitempty"`
	OperatorStakes  []core.OperatorStake `json:"operator_stakes,omitempty"`
}

func planToJSON(plan core.ThresholdPlan) thresholdPlanJSON {
	if plan.Type == core.ThresholdStakeWeighted {
		return thresholdPlanJSON{
			Type:           plan.Type.String(),
			ThresholdBps:   plan.ThresholdBps,
			OperatorStakes: plan.Stakes,
		}
	}

	return thresholdPlanJSON{
		Type:            plan.Type.String(),
		RequiredSigners: plan.RequiredSigners,
	}
}

type initTaskRequest struct {
	ServiceID     uint64            `json:"service_id"`
	CallID        uint64            `json:"call_id"`
	OperatorCount uint32            `json:"operator_count"`
	Threshold     thresholdPlanJSON `json:"threshold"`
	Output        hexutil.Bytes     `json:"output"`
}

type initTaskResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type submitSignatureRequest struct {
	ServiceID     uint64        `json:"service_id"`
	CallID        uint64        `json:"call_id"`
	OperatorIndex uint32        `json:"operator_index"`
	Output        hexutil.Bytes `json:"output"`
	Signature     hexutil.Bytes `json:"signature"`
	PublicKey     hexutil.Bytes `json:"public_key"`
}

type submitSignatureResponse struct {
	Accepted            bool   `json:"accepted"`
	SignaturesCollected int    `json:"signatures_collected"`
	ThresholdRequired   int    `json:"threshold_required"`
	ThresholdMet        bool   `json:"threshold_met"`
	Error               string `json:"error,omitempty"`
}

type taskRequest struct {
	ServiceID uint64 `json:"service_id"`
	CallID    uint64 `json:"call_id"`
}

type aggregatedResultResponse struct {
	ServiceID           uint64        `json:"service_id"`
	CallID              uint64        `json:"call_id"`
	Output              hexutil.Bytes `json:"output"`
	SignerBitmap        hexutil.Bytes `json:"signer_bitmap"`
	AggregatedSignature hexutil.Bytes `json:"aggregated_signature"`
	AggregatedPubkey    hexutil.Bytes `json:"aggregated_pubkey"`
}

// Health reports whether the endpoint responds on its health route.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, errors.Wrap(err, "new health request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Wrap(core.ErrAggregationService, "health request", z.Err(err))
	}
	defer resp.Body.Close()

	return resp.StatusCode/100 == 2, nil
}

// InitTask initialises an aggregation task on the endpoint. The task may
// already exist from another operator, in which case the endpoint is free to
// reject and callers ignore the error.
func (c *Client) InitTask(ctx context.Context, serviceID, callID uint64, output []byte,
	operatorCount uint32, plan core.ThresholdPlan,
) error {
	var resp initTaskResponse

	err := c.postJSON(ctx, "/v1/tasks/init", initTaskRequest{
		ServiceID:     serviceID,
		CallID:        callID,
		OperatorCount: operatorCount,
		Threshold:     planToJSON(plan),
		Output:        output,
	}, &resp)
	if err != nil {
		return err
	}

	if !resp.Success {
		return errors.Wrap(core.ErrAggregationService, "init task rejected", z.Str("reason", resp.Error))
	}

	return nil
}

// SubmitSignature submits this operator's partial signature for aggregation.
func (c *Client) SubmitSignature(ctx context.Context, sub core.SignatureSubmission) (core.SubmissionStatus, error) {
	var resp submitSignatureResponse

	err := c.postJSON(ctx, "/v1/tasks/submit", submitSignatureRequest{
		ServiceID:     sub.ServiceID,
		CallID:        sub.CallID,
		OperatorIndex: sub.OperatorIndex,
		Output:        sub.Output,
		Signature:     sub.Signature,
		PublicKey:     sub.PublicKey,
	}, &resp)
	if err != nil {
		return core.SubmissionStatus{}, err
	}

	if !resp.Accepted {
		return core.SubmissionStatus{}, errors.Wrap(core.ErrAggregationService,
			"signature rejected", z.Str("reason", resp.Error))
	}

	return core.SubmissionStatus{
		SignaturesCollected: resp.SignaturesCollected,
		ThresholdRequired:   resp.ThresholdRequired,
		ThresholdMet:        resp.ThresholdMet,
	}, nil
}

// AggregatedResult returns the aggregated proof if the endpoint has met
// threshold for the task, or nil if not yet available.
func (c *Client) AggregatedResult(ctx context.Context, serviceID, callID uint64) (*core.AggregateProof, error) {
	body, err := json.Marshal(taskRequest{ServiceID: serviceID, CallID: callID})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks/aggregate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new aggregate request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(core.ErrAggregationService, "aggregate request", z.Err(err), z.Str("endpoint", c.baseURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Wrap(core.ErrAggregationService, "aggregate request failed",
			z.Int("status", resp.StatusCode), z.Str("endpoint", c.baseURL))
	}

	var result *aggregatedResultResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(core.ErrAggregationService, "decode aggregate response", z.Err(err))
	}
	if result == nil {
		return nil, nil
	}

	return &core.AggregateProof{
		ServiceID:           result.ServiceID,
		CallID:              result.CallID,
		Output:              result.Output,
		SignerBitmap:        result.SignerBitmap,
		AggregatedSignature: result.AggregatedSignature,
		AggregatedPublicKey: result.AggregatedPubkey,
	}, nil
}

// MarkSubmitted marks the task as finalised on chain.
func (c *Client) MarkSubmitted(ctx context.Context, serviceID, callID uint64) error {
	body, err := json.Marshal(taskRequest{ServiceID: serviceID, CallID: callID})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks/mark-submitted", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new mark-submitted request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(core.ErrAggregationService, "mark-submitted request", z.Err(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.Wrap(core.ErrAggregationService, "mark-submitted failed", z.Int("status", resp.StatusCode))
	}

	return nil
}

// postJSON posts the request body to the path and decodes a 2xx response into response.
func (c *Client) postJSON(ctx context.Context, path string, request any, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request", z.Str("path", path))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(core.ErrAggregationService, "post request",
			z.Err(err), z.Str("path", path), z.Str("endpoint", c.baseURL))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(core.ErrAggregationService, "read response", z.Err(err), z.Str("path", path))
	}

	if resp.StatusCode/100 != 2 {
		return errors.Wrap(core.ErrAggregationService, "request failed",
			z.Int("status", resp.StatusCode), z.Str("path", path), z.Str("body", string(data)))
	}

	if err := json.Unmarshal(data, response); err != nil {
		return errors.Wrap(core.ErrAggregationService, "decode response", z.Err(err), z.Str("path", path))
	}

	return nil
}
