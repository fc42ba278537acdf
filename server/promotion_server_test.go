package server_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"

	"github.com/weaveworks/apptrust-promoter/controllers"
	"github.com/weaveworks/apptrust-promoter/internal/testingutils"
	"github.com/weaveworks/apptrust-promoter/server"
)

func TestNewPromotionServerRequiresFactory(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	_, err := server.NewPromotionServer(nil)
	g.Expect(err).To(MatchError(server.ErrFactoryCantBeNil))

	adv := &introspectableAdvancer{}
	_, err = server.NewPromotionServer(adv.factory, server.WithRateLimit(0, time.Second))
	g.Expect(err).To(MatchError(ContainSubstring("rate limit must be at least 1")))
}

func TestPromotionServer(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	adv := &introspectableAdvancer{result: &controllers.AdvanceResult{Action: controllers.ActionNoOp}}

	srv, err := server.NewPromotionServer(adv.factory,
		server.Logger(logr.Discard()),
		server.ListenAddr("127.0.0.1:0"),
		server.WithRateLimit(2, time.Minute),
	)
	g.Expect(err).NotTo(HaveOccurred())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error)
	go func() {
		stopped <- srv.Start(ctx)
	}()

	base := fmt.Sprintf("http://%s", srv.Addr())

	g.Eventually(func() (int, error) {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	}).Should(Equal(http.StatusOK))

	post := func() int {
		resp, err := http.Post(base+"/promotion/bookverse-web/1.4.2", "application/json", nil)
		g.Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		return resp.StatusCode
	}
	g.Expect(post()).To(Equal(http.StatusOK))
	g.Expect(post()).To(Equal(http.StatusOK))
	g.Expect(post()).To(Equal(http.StatusTooManyRequests))
	g.Expect(adv.calls).To(Equal([]string{"bookverse-web@1.4.2", "bookverse-web@1.4.2"}))

	cancel()
	g.Eventually(stopped).Should(Receive(BeNil()))
}
