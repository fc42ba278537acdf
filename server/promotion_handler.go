package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"

	"github.com/fluxcd/pkg/runtime/logger"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/weaveworks/apptrust-promoter/controllers"
	"github.com/weaveworks/apptrust-promoter/internal/apptrust"
	"github.com/weaveworks/apptrust-promoter/internal/config"
)

const (
	SignatureHeader = "X-Signature"
)

var pathPattern = regexp.MustCompile("^/([^/]+)/([^/]+)$")

// Advancer moves one application version into its next stage.
type Advancer interface {
	AdvanceOneStep(ctx context.Context) (*controllers.AdvanceResult, error)
}

// AdvancerFactory builds the advancer of version of application.
type AdvancerFactory func(application, version string) (Advancer, error)

// DefaultPromotionHandler serves POST /{application}/{version}. Only one request per version is processed at a
// time, the others are answered with 409.
type DefaultPromotionHandler struct {
	log     logr.Logger
	factory AdvancerFactory
	hmacKey []byte

	mu       sync.Mutex
	inFlight sets.String
}

func NewDefaultPromotionHandler(log logr.Logger, factory AdvancerFactory, hmacKey []byte) *DefaultPromotionHandler {
	return &DefaultPromotionHandler{
		log:      log,
		factory:  factory,
		hmacKey:  hmacKey,
		inFlight: sets.NewString(),
	}
}

func (h *DefaultPromotionHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	pathMatches := pathPattern.FindStringSubmatch(r.URL.Path)
	if pathMatches == nil {
		h.log.V(logger.DebugLevel).Info("request for unknown path", "path", r.URL.Path)
		http.NotFound(rw, r)
		return
	}
	application, version := pathMatches[1], pathMatches[2]
	log := h.log.WithValues("application", application, "version", version)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.V(logger.DebugLevel).Error(err, "reading request body")
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.verifyXSignature(r.Header, body); err != nil {
		log.V(logger.DebugLevel).Error(err, "failed verifying X-Signature header")
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}

	key := application + "@" + version
	if !h.acquire(key) {
		rw.WriteHeader(http.StatusConflict)
		fmt.Fprintf(rw, "a transition of %s is already in progress", key)
		return
	}
	defer h.release(key)

	adv, err := h.factory(application, version)
	if err != nil {
		log.Error(err, "failed setting up progression")
		if errors.Is(err, config.ErrConfigurationMissing) {
			rw.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(rw, err.Error())
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(rw, "error advancing application, please consult the promotion server's logs")
		return
	}

	res, err := adv.AdvanceOneStep(r.Context())
	if err != nil {
		log.Error(err, "error advancing application")
		switch {
		case errors.Is(err, controllers.ErrTransitionInProgress):
			rw.WriteHeader(http.StatusConflict)
			fmt.Fprint(rw, err.Error())
		case errors.Is(err, apptrust.ErrTransitionFailed):
			rw.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(rw, err.Error())
		default:
			rw.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(rw, "error advancing application, please consult the promotion server's logs")
		}
		return
	}

	log.Info("advanced application", "action", res.Action, "from", res.From, "to", res.To)

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(rw).Encode(res); err != nil {
		log.Error(err, "failed writing response")
	}
}

func (h *DefaultPromotionHandler) acquire(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inFlight.Has(key) {
		return false
	}
	h.inFlight.Insert(key)
	return true
}

func (h *DefaultPromotionHandler) release(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inFlight.Delete(key)
}
