package controllers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/controllers"
	"github.com/weaveworks/apptrust-promoter/internal/testingutils"
)

func TestRunStateSnapshot(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	s := controllers.NewRunState(nil)

	s.Set(v1alpha1.CurrentStageKey, "DEV")
	s.AppendPromoted(v1alpha1.Dev)
	s.Set(v1alpha1.CurrentStageKey, "QA")
	s.AppendPromoted(v1alpha1.QA)

	g.Expect(s.Snapshot()).To(Equal(map[string]string{
		v1alpha1.CurrentStageKey:   "QA",
		v1alpha1.PromotedStagesKey: "DEV,QA",
	}))

	stages := s.PromotedStages()
	stages[0] = v1alpha1.Prod
	g.Expect(s.PromotedStages()).To(Equal([]v1alpha1.Stage{v1alpha1.Dev, v1alpha1.QA}))
}

func TestRunStateFromEnv(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	env := map[string]string{
		v1alpha1.CurrentStageKey:   "QA",
		v1alpha1.PromotedStagesKey: "DEV, QA,",
		v1alpha1.DidReleaseKey:     "false",
	}
	s := controllers.RunStateFromEnv(nil, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	g.Expect(s.PromotedStages()).To(Equal([]v1alpha1.Stage{v1alpha1.Dev, v1alpha1.QA}))
	g.Expect(s.Get(v1alpha1.CurrentStageKey)).To(Equal("QA"))
	g.Expect(s.Get(v1alpha1.ReleaseStatusKey)).To(BeEmpty())

	s.AppendPromoted(v1alpha1.Staging)
	g.Expect(s.Snapshot()[v1alpha1.PromotedStagesKey]).To(Equal("DEV,QA,STAGING"))
}

func TestEnvFileSink(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	path := filepath.Join(t.TempDir(), "env")
	g.Expect(os.WriteFile(path, []byte("EXISTING=1\n"), 0o644)).To(Succeed())

	s := controllers.NewRunState(controllers.EnvFileSink{Path: path})
	s.Set(v1alpha1.CurrentStageKey, "DEV")
	s.AppendPromoted(v1alpha1.Dev)
	g.Expect(s.Persist()).To(Succeed())

	content, err := os.ReadFile(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(content)).To(Equal("EXISTING=1\nCURRENT_STAGE=DEV\nPROMOTED_STAGES=DEV\n"))
}

func TestEnvFileSinkRejectsMultilineValues(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	sink := controllers.EnvFileSink{Path: filepath.Join(t.TempDir(), "env")}
	err := sink.Persist(map[string]string{v1alpha1.ReleaseStatusKey: "RELEASED\nINJECTED=1"})
	g.Expect(err).To(MatchError(ContainSubstring("multiple lines")))
}

func TestEnvFileSinkWritesNothingOnRejectedValue(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	path := filepath.Join(t.TempDir(), "env")
	g.Expect(os.WriteFile(path, []byte("EXISTING=1\n"), 0o644)).To(Succeed())

	sink := controllers.EnvFileSink{Path: path}
	err := sink.Persist(map[string]string{
		v1alpha1.CurrentStageKey:  "QA",
		v1alpha1.ReleaseStatusKey: "RELEASED\r\nINJECTED=1",
	})
	g.Expect(err).To(MatchError(ContainSubstring(v1alpha1.ReleaseStatusKey)))

	content, err := os.ReadFile(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(content)).To(Equal("EXISTING=1\n"))
}

type failingSink struct{}

func (failingSink) Persist(map[string]string) error {
	return errors.New("disk full")
}

func TestMultiSink(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	var buf bytes.Buffer

	s := controllers.NewRunState(controllers.MultiSink{controllers.JSONSink{W: &buf}})
	s.Set(v1alpha1.DidReleaseKey, "true")
	g.Expect(s.Persist()).To(Succeed())

	var decoded map[string]string
	g.Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
	g.Expect(decoded).To(HaveKeyWithValue(v1alpha1.DidReleaseKey, "true"))
	g.Expect(decoded).To(HaveKeyWithValue(v1alpha1.PromotedStagesKey, ""))

	s = controllers.NewRunState(controllers.MultiSink{failingSink{}, controllers.JSONSink{W: &buf}})
	g.Expect(s.Persist()).To(MatchError("disk full"))
}
