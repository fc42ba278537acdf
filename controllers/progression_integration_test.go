package controllers_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/controllers"
	"github.com/weaveworks/apptrust-promoter/internal/apptrust"
	"github.com/weaveworks/apptrust-promoter/internal/testingutils"
	"github.com/weaveworks/apptrust-promoter/server/strategy"
	"github.com/weaveworks/apptrust-promoter/server/strategy/noop"
	"github.com/weaveworks/apptrust-promoter/server/strategy/promote"
	"github.com/weaveworks/apptrust-promoter/server/strategy/release"
)

func newAppTrustController(g *WithT, fake *testingutils.FakeAppTrust, state *controllers.RunState, opts ...controllers.Opt) *controllers.ProgressionController {
	client, err := apptrust.New(fake.BaseURL(), "bookverse-web", "1.4.2", "s3cr3t",
		apptrust.ProjectKey("bookverse"), apptrust.Logger(logr.Discard()))
	g.Expect(err).NotTo(HaveOccurred())

	promoteStrat, err := promote.New(client)
	g.Expect(err).NotTo(HaveOccurred())
	releaseStrat, err := release.New(client)
	g.Expect(err).NotTo(HaveOccurred())

	var reg strategy.StrategyRegistry
	reg.Register(promoteStrat)
	reg.Register(releaseStrat)

	opts = append([]controllers.Opt{
		controllers.Logger(logr.Discard()),
		controllers.Identity("bookverse-web", "1.4.2"),
		controllers.ProjectKey("bookverse"),
		controllers.Stages(bookverseStages),
		controllers.Confirmation(0, 0),
	}, opts...)

	c, err := controllers.NewProgressionController(client, reg, state, opts...)
	g.Expect(err).NotTo(HaveOccurred())
	return c
}

func TestAdvanceAgainstAppTrust(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	fake := testingutils.NewFakeAppTrust()
	defer fake.Close()
	fake.SetSummary("1.4.2", v1alpha1.VersionSummary{CurrentStage: "bookverse-QA"})

	c := newAppTrustController(g, fake, nil)
	res, err := c.AdvanceOneStep(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Mode).To(Equal(v1alpha1.ModePromote))
	g.Expect(res.To).To(Equal(v1alpha1.Staging))
	g.Expect(res.Confirmed).To(BeTrue())

	reqs := fake.RequestsTo(http.MethodPost, "/promote")
	g.Expect(reqs).To(HaveLen(1))
	g.Expect(string(reqs[0].Body)).To(MatchJSON(`{"target_stage":"bookverse-STAGING","promotion_type":"move"}`))
	g.Expect(c.State().Get(v1alpha1.CurrentStageKey)).To(Equal("STAGING"))
	g.Expect(c.State().PromotedStages()).To(Equal([]v1alpha1.Stage{v1alpha1.Staging}))
}

func TestAdvanceThroughAllStages(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	fake := testingutils.NewFakeAppTrust()
	defer fake.Close()

	envFile := filepath.Join(t.TempDir(), "github_env")
	c := newAppTrustController(g, fake, controllers.NewRunState(controllers.EnvFileSink{Path: envFile}),
		controllers.AllowRelease(true))

	var actions []controllers.Action
	for i := 0; i < 5; i++ {
		res, err := c.AdvanceOneStep(context.Background())
		g.Expect(err).NotTo(HaveOccurred())
		actions = append(actions, res.Action)
	}

	g.Expect(actions).To(Equal([]controllers.Action{
		controllers.ActionPromoted,
		controllers.ActionPromoted,
		controllers.ActionPromoted,
		controllers.ActionReleased,
		controllers.ActionNoOp,
	}))
	g.Expect(c.State().PromotedStages()).To(Equal([]v1alpha1.Stage(bookverseStages)))
	g.Expect(c.State().Get(v1alpha1.DidReleaseKey)).To(Equal("true"))
	g.Expect(c.State().Get(v1alpha1.ReleaseStatusKey)).To(Equal(v1alpha1.ReleaseStatusReleased))

	releases := fake.RequestsTo(http.MethodPost, "/release")
	g.Expect(releases).To(HaveLen(1))
	g.Expect(string(releases[0].Body)).To(MatchJSON(`{
		"promotion_type": "move",
		"included_repository_keys": [
			"bookverse-web-internal-npm-release-local",
			"bookverse-web-internal-docker-release-local",
			"bookverse-web-internal-generic-release-local"
		]
	}`))

	content, err := os.ReadFile(envFile)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(content)).To(ContainSubstring("PROMOTED_STAGES=DEV,QA,STAGING,PROD\n"))
	g.Expect(string(content)).To(ContainSubstring("DID_RELEASE=true\n"))
}

func TestAdvanceConflictAgainstAppTrust(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	fake := testingutils.NewFakeAppTrust()
	defer fake.Close()
	fake.ContentStatus = http.StatusServiceUnavailable
	fake.PromoteStatus = http.StatusConflict
	fake.ErrorBody = "another promotion of this version is running"

	c := newAppTrustController(g, fake, nil, controllers.Confirmation(3, 0))
	_, err := c.AdvanceOneStep(context.Background())
	g.Expect(err).To(MatchError(apptrust.ErrTransitionFailed))
	g.Expect(err.Error()).To(ContainSubstring("another promotion of this version is running"))

	promotes := fake.RequestsTo(http.MethodPost, "/promote")
	g.Expect(promotes).To(HaveLen(1))
	g.Expect(string(promotes[0].Body)).To(MatchJSON(`{"target_stage":"bookverse-DEV","promotion_type":"move"}`))
	g.Expect(c.State().PromotedStages()).To(BeEmpty())
}

func TestDryRunAgainstAppTrust(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	fake := testingutils.NewFakeAppTrust()
	defer fake.Close()
	fake.SetSummary("1.4.2", v1alpha1.VersionSummary{CurrentStage: "bookverse-STAGING"})

	client, err := apptrust.New(fake.BaseURL(), "bookverse-web", "1.4.2", "s3cr3t",
		apptrust.ProjectKey("bookverse"), apptrust.Logger(logr.Discard()))
	g.Expect(err).NotTo(HaveOccurred())
	dry, err := noop.NewNoop(client, logr.Discard())
	g.Expect(err).NotTo(HaveOccurred())

	var reg strategy.StrategyRegistry
	reg.Register(dry)
	c, err := controllers.NewProgressionController(client, reg, nil,
		controllers.Logger(logr.Discard()),
		controllers.Identity("bookverse-web", "1.4.2"),
		controllers.ProjectKey("bookverse"),
		controllers.Stages(bookverseStages),
		controllers.AllowRelease(true),
	)
	g.Expect(err).NotTo(HaveOccurred())

	res, err := c.AdvanceOneStep(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Action).To(Equal(controllers.ActionDryRun))
	g.Expect(res.Transition.Request.Mode).To(Equal(v1alpha1.ModeRelease))
	g.Expect(res.Transition.Request.APIStage).To(Equal(v1alpha1.APIStage("PROD")))

	g.Expect(fake.RequestsTo(http.MethodPost, "")).To(BeEmpty())
	g.Expect(fake.Summary("1.4.2").CurrentStage).To(Equal(v1alpha1.APIStage("bookverse-STAGING")))
}
