package testingutils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/internal/apptrust"
)

// RecordedRequest is a request as seen by FakeAppTrust.
type RecordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	Body          []byte
}

// FakeAppTrust is an in-process AppTrust API serving a single application. Status fields default to 200 when
// zero. It's safe for concurrent use.
type FakeAppTrust struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	summary  map[string]v1alpha1.VersionSummary
	rawBody  map[string]string

	Versions       []apptrust.VersionRecord
	ContentStatus  int
	PromoteStatus  int
	ReleaseStatus  int
	RollbackStatus int
	PatchStatus    int
	ListStatus     int
	// ErrorBody is returned with every non-2xx status.
	ErrorBody string
	// AdvanceOnTransition moves the stored summary to the requested stage once a promote or release is accepted.
	AdvanceOnTransition bool
	// PromoteStarted receives a value when a promote call arrives, PromoteGate then blocks it until closed.
	PromoteStarted chan struct{}
	PromoteGate    chan struct{}
}

// NewFakeAppTrust starts a fake server. Stop it with Close.
func NewFakeAppTrust() *FakeAppTrust {
	f := &FakeAppTrust{
		summary:             map[string]v1alpha1.VersionSummary{},
		rawBody:             map[string]string{},
		AdvanceOnTransition: true,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	return f
}

// BaseURL returns the AppTrust API root of the fake.
func (f *FakeAppTrust) BaseURL() string {
	return f.Server.URL + apptrust.APIPath
}

func (f *FakeAppTrust) Close() {
	f.Server.Close()
}

// SetSummary sets the state returned for version.
func (f *FakeAppTrust) SetSummary(version string, s v1alpha1.VersionSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary[version] = s
}

// SetRawSummary makes the content endpoint of version return body verbatim.
func (f *FakeAppTrust) SetRawSummary(version, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawBody[version] = body
}

func (f *FakeAppTrust) Summary(version string) v1alpha1.VersionSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary[version]
}

// Requests returns all requests received so far.
func (f *FakeAppTrust) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// RequestsTo returns the requests whose path ends with suffix.
func (f *FakeAppTrust) RequestsTo(method, suffix string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range f.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}

func (f *FakeAppTrust) serveHTTP(rw http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	f.mu.Unlock()

	// /apptrust/api/v1/applications/{app}/versions[/{version}[/{action}]]
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, apptrust.APIPath+"/"), "/")
	if len(parts) < 3 || parts[0] != "applications" || parts[2] != "versions" {
		http.NotFound(rw, r)
		return
	}

	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		f.list(rw)
	case len(parts) == 4 && r.Method == http.MethodPatch:
		f.reply(rw, f.PatchStatus, nil)
	case len(parts) == 5 && parts[4] == "content" && r.Method == http.MethodGet:
		f.content(rw, parts[3])
	case len(parts) == 5 && parts[4] == "promote" && r.Method == http.MethodPost:
		f.promote(rw, parts[3], body)
	case len(parts) == 5 && parts[4] == "release" && r.Method == http.MethodPost:
		f.release(rw, parts[3])
	case len(parts) == 5 && parts[4] == "rollback" && r.Method == http.MethodPost:
		f.reply(rw, f.RollbackStatus, nil)
	default:
		http.NotFound(rw, r)
	}
}

func (f *FakeAppTrust) list(rw http.ResponseWriter) {
	f.mu.Lock()
	versions := f.Versions
	f.mu.Unlock()
	f.reply(rw, f.ListStatus, map[string]interface{}{"versions": versions})
}

func (f *FakeAppTrust) content(rw http.ResponseWriter, version string) {
	f.mu.Lock()
	raw, hasRaw := f.rawBody[version]
	summary := f.summary[version]
	f.mu.Unlock()

	if f.ContentStatus != 0 && f.ContentStatus != http.StatusOK {
		f.reply(rw, f.ContentStatus, nil)
		return
	}
	if hasRaw {
		rw.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(rw, raw)
		return
	}
	f.reply(rw, http.StatusOK, summary)
}

func (f *FakeAppTrust) promote(rw http.ResponseWriter, version string, body []byte) {
	if f.PromoteStarted != nil {
		f.PromoteStarted <- struct{}{}
	}
	if f.PromoteGate != nil {
		<-f.PromoteGate
	}
	if !isOK(f.PromoteStatus) {
		f.reply(rw, f.PromoteStatus, nil)
		return
	}
	var payload v1alpha1.PromotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	if f.AdvanceOnTransition {
		f.mu.Lock()
		s := f.summary[version]
		s.CurrentStage = payload.TargetStage
		f.summary[version] = s
		f.mu.Unlock()
	}
	f.reply(rw, http.StatusOK, nil)
}

func (f *FakeAppTrust) release(rw http.ResponseWriter, version string) {
	if !isOK(f.ReleaseStatus) {
		f.reply(rw, f.ReleaseStatus, nil)
		return
	}
	if f.AdvanceOnTransition {
		f.mu.Lock()
		f.summary[version] = v1alpha1.VersionSummary{
			CurrentStage:  v1alpha1.APIStage(v1alpha1.Prod),
			ReleaseStatus: v1alpha1.ReleaseStatusReleased,
		}
		f.mu.Unlock()
	}
	f.reply(rw, http.StatusOK, nil)
}

func (f *FakeAppTrust) reply(rw http.ResponseWriter, status int, v interface{}) {
	if !isOK(status) {
		rw.WriteHeader(status)
		_, _ = io.WriteString(rw, f.ErrorBody)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	if v != nil {
		_ = json.NewEncoder(rw).Encode(v)
	}
}

func isOK(status int) bool {
	return status == 0 || (status >= 200 && status < 300)
}
