package apptrust

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
)

// VersionRecord is one entry of an application's version list.
type VersionRecord struct {
	Version       string            `json:"version"`
	Tag           string            `json:"tag,omitempty"`
	ReleaseStatus string            `json:"release_status,omitempty"`
	CurrentStage  v1alpha1.APIStage `json:"current_stage,omitempty"`
}

// VersionPatch updates the tag and properties of a version. Nil fields are left untouched.
type VersionPatch struct {
	Tag              *string             `json:"tag,omitempty"`
	Properties       map[string][]string `json:"properties,omitempty"`
	DeleteProperties []string            `json:"delete_properties,omitempty"`
}

type versionList struct {
	Versions []VersionRecord `json:"versions"`
}

// ListVersions returns up to limit versions of the application, newest first.
func (c *Client) ListVersions(ctx context.Context, limit int) ([]VersionRecord, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("order_by", "created")
	q.Set("order_asc", "false")
	u := c.applicationURL() + "/versions?" + q.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &UnavailableError{Reason: ReasonTransport, URL: u, Err: err}
	}
	resp, body, err := c.send(req)
	if err != nil {
		return nil, &UnavailableError{Reason: ReasonTransport, URL: u, Err: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &UnavailableError{Reason: ReasonNotFound, URL: u, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !isSuccess(resp.StatusCode) {
		return nil, &UnavailableError{Reason: ReasonStatus, URL: u, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var list versionList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &UnavailableError{Reason: ReasonMalformed, URL: u, StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	return list.Versions, nil
}

// PatchVersion updates tag and properties of version.
func (c *Client) PatchVersion(ctx context.Context, version string, patch VersionPatch) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed encoding version patch: %w", err)
	}
	return c.mutate(ctx, "patch", http.MethodPatch, c.versionURL(version), payload)
}

// RollbackVersion moves version out of fromStage.
func (c *Client) RollbackVersion(ctx context.Context, version string, fromStage v1alpha1.APIStage) error {
	payload, err := json.Marshal(map[string]v1alpha1.APIStage{"from_stage": fromStage})
	if err != nil {
		return fmt.Errorf("failed encoding rollback payload: %w", err)
	}
	return c.mutate(ctx, "rollback", http.MethodPost, c.versionURL(version)+"/rollback", payload)
}
