package apptrust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fluxcd/pkg/runtime/logger"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"golang.org/x/oauth2"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/pkg/stages"
)

const (
	// APIPath is appended to a platform URL to get the base URL of the AppTrust API.
	APIPath = "/apptrust/api/v1"

	redacted = "<redacted>"
)

// Client talks to the AppTrust API on behalf of a single application version. All calls block until the
// service has answered or the timeout is hit and none of them is retried. Promotions and releases are always
// issued with async=false: the service serializes promotions of a version and rejects overlapping ones.
type Client struct {
	log        logr.Logger
	httpClient *http.Client
	transport  http.RoundTripper
	timeout    time.Duration
	codec      stages.Codec

	baseURL string
	app     string
	version string
	token   string
}

// New creates a client for version of app. baseURL is the AppTrust API root, i.e. it already ends with APIPath.
func New(baseURL, app, version, token string, opts ...Opt) (*Client, error) {
	switch {
	case baseURL == "":
		return nil, ErrBaseURLEmpty
	case app == "":
		return nil, ErrApplicationEmpty
	case version == "":
		return nil, ErrVersionEmpty
	case token == "":
		return nil, ErrTokenEmpty
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		app:     app,
		version: version,
		token:   token,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	setDefaults(c)

	return c, nil
}

func setDefaults(c *Client) {
	if c.log.GetSink() == nil {
		c.log = stdr.New(log.New(os.Stdout, "", log.Lshortfile))
	}
	if c.timeout == 0 {
		c.timeout = v1alpha1.DefaultTimeout
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	c.httpClient = &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
}

func (c *Client) Application() string {
	return c.app
}

func (c *Client) Version() string {
	return c.version
}

func (c *Client) Codec() stages.Codec {
	return c.codec
}

func (c *Client) applicationURL() string {
	return fmt.Sprintf("%s/applications/%s", c.baseURL, url.PathEscape(c.app))
}

func (c *Client) versionURL(version string) string {
	return fmt.Sprintf("%s/versions/%s", c.applicationURL(), url.PathEscape(version))
}

// FetchSummary reads the current stage and release status of the client's version. Any failure is reported
// as an UnavailableError.
func (c *Client) FetchSummary(ctx context.Context) (v1alpha1.VersionSummary, error) {
	return c.GetVersion(ctx, c.version)
}

// GetVersion reads the current stage and release status of an arbitrary version of the client's application.
func (c *Client) GetVersion(ctx context.Context, version string) (v1alpha1.VersionSummary, error) {
	var summary v1alpha1.VersionSummary
	u := c.versionURL(version) + "/content"

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return summary, &UnavailableError{Reason: ReasonTransport, URL: u, Err: err}
	}
	resp, body, err := c.send(req)
	if err != nil {
		return summary, &UnavailableError{Reason: ReasonTransport, URL: u, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return summary, &UnavailableError{Reason: ReasonNotFound, URL: u, StatusCode: resp.StatusCode, Body: string(body)}
	case !isSuccess(resp.StatusCode):
		return summary, &UnavailableError{Reason: ReasonStatus, URL: u, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return summary, nil
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		return v1alpha1.VersionSummary{}, &UnavailableError{Reason: ReasonMalformed, URL: u, StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}

	c.log.V(logger.DebugLevel).Info("fetched version summary", "version", version, "stage", summary.CurrentStage, "releaseStatus", summary.ReleaseStatus)
	return summary, nil
}

// NewPromoteRequest builds the request promoting the client's version to target.
func (c *Client) NewPromoteRequest(target v1alpha1.Stage) (v1alpha1.TransitionRequest, error) {
	return v1alpha1.NewPromoteRequest(target, c.codec.API(target))
}

// NewReleaseRequest builds the request releasing the client's version into final.
func (c *Client) NewReleaseRequest(final v1alpha1.Stage, repositoryKeys []string) (v1alpha1.TransitionRequest, error) {
	return v1alpha1.NewReleaseRequest(final, c.codec.API(final), repositoryKeys)
}

// Promote moves the version into target and re-reads its state afterwards.
func (c *Client) Promote(ctx context.Context, target v1alpha1.Stage) (*v1alpha1.TransitionResult, error) {
	req, err := c.NewPromoteRequest(target)
	if err != nil {
		return nil, err
	}
	return c.transition(ctx, req, "/promote")
}

// Release moves the version into the final stage, releasing the artifacts of the given repositories.
func (c *Client) Release(ctx context.Context, final v1alpha1.Stage, repositoryKeys []string) (*v1alpha1.TransitionResult, error) {
	req, err := c.NewReleaseRequest(final, repositoryKeys)
	if err != nil {
		return nil, err
	}
	return c.transition(ctx, req, "/release")
}

func (c *Client) transition(ctx context.Context, tr v1alpha1.TransitionRequest, path string) (*v1alpha1.TransitionResult, error) {
	log := c.log.WithValues("mode", tr.Mode, "target", tr.Target, "apiStage", tr.APIStage, "version", c.version)
	u := c.versionURL(c.version) + path + "?async=false"

	if err := c.mutate(ctx, strings.ToLower(string(tr.Mode)), http.MethodPost, u, tr.Payload); err != nil {
		return nil, err
	}
	log.Info("transition accepted")

	res := &v1alpha1.TransitionResult{
		Request:  tr,
		Released: tr.Mode == v1alpha1.ModeRelease,
	}

	summary, err := c.FetchSummary(ctx)
	if err != nil {
		log.Info("could not re-synchronize version state", "error", err.Error())
		return res, nil
	}
	res.Summary = summary
	res.Synced = true

	return res, nil
}

// mutate issues a state changing call. Rejections are logged with the redacted request and returned as
// TransitionError.
func (c *Client) mutate(ctx context.Context, operation, method, u string, payload []byte) error {
	req, err := c.newRequest(ctx, method, u, payload)
	if err != nil {
		return &TransitionError{Operation: operation, Method: method, URL: u, Err: err}
	}

	resp, body, err := c.send(req)
	if err != nil {
		terr := &TransitionError{Operation: operation, Method: method, URL: u, Err: err}
		c.log.Error(terr, "request failed", "request", describeRequest(req, payload))
		return terr
	}
	if !isSuccess(resp.StatusCode) {
		terr := &TransitionError{Operation: operation, Method: method, URL: u, StatusCode: resp.StatusCode, Body: string(body)}
		c.log.Error(terr, "request rejected", "request", describeRequest(req, payload), "status", resp.StatusCode, "response", string(body))
		return terr
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, u string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading response body: %w", err)
	}
	return resp, body, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// describeRequest renders a request for diagnostics. Credentials never make it into the output.
func describeRequest(req *http.Request, payload []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", req.Method, req.URL.String())

	headers := req.Header.Clone()
	headers.Set("Authorization", "Bearer "+redacted)
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := strings.Join(headers[name], ", ")
		if name != "Authorization" && isSensitiveHeader(name) {
			value = redacted
		}
		fmt.Fprintf(&b, "%s: %s\n", name, value)
	}
	if len(payload) > 0 {
		fmt.Fprintf(&b, "\n%s", payload)
	}
	return b.String()
}

func isSensitiveHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Authorization", "Cookie", "X-Jfrog-Art-Api":
		return true
	}
	return false
}
