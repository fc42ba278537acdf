package evidence_test

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/internal/testingutils"
	"github.com/weaveworks/apptrust-promoter/pkg/evidence"
)

type recorder struct {
	name  string
	calls *[]string
	err   error
}

func (r recorder) Emit(_ context.Context, s evidence.Subject) error {
	*r.calls = append(*r.calls, r.name+":"+string(s.Stage))
	return r.err
}

func TestRegistryDispatch(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	var calls []string

	var reg evidence.Registry
	reg.Register(v1alpha1.Prod, recorder{name: "release", calls: &calls})

	ok, err := reg.Dispatch(context.Background(), evidence.Subject{Stage: v1alpha1.QA})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	reg.Fallback(recorder{name: "default", calls: &calls})
	for _, stage := range []v1alpha1.Stage{v1alpha1.QA, v1alpha1.Prod} {
		ok, err = reg.Dispatch(context.Background(), evidence.Subject{Stage: stage})
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(ok).To(BeTrue())
	}
	g.Expect(calls).To(Equal([]string{"default:QA", "release:PROD"}))
}

func TestRegistryDispatchFailure(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	var calls []string
	boom := errors.New("boom")

	var reg evidence.Registry
	reg.Register(v1alpha1.Dev, recorder{calls: &calls, err: boom})

	ok, err := reg.Dispatch(context.Background(), evidence.Subject{Application: "bookverse-web", Version: "1.4.2", Stage: v1alpha1.Dev})
	g.Expect(ok).To(BeTrue())
	g.Expect(err).To(MatchError(boom))
	g.Expect(err.Error()).To(ContainSubstring("bookverse-web@1.4.2 in DEV"))
}

func TestCommandEmitter(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	e, err := evidence.NewCommandEmitter([]string{"sh", "-c", `echo "$EVIDENCE_STAGE $EVIDENCE_API_STAGE $APPLICATION_KEY $APP_VERSION $EVIDENCE_RELEASED"`})
	g.Expect(err).NotTo(HaveOccurred())
	var out bytes.Buffer
	e.Stdout = &out

	err = e.Emit(context.Background(), evidence.Subject{
		Application: "bookverse-web",
		Version:     "1.4.2",
		Stage:       v1alpha1.Prod,
		APIStage:    "PROD",
		Released:    true,
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(strings.TrimSpace(out.String())).To(Equal("PROD PROD bookverse-web 1.4.2 true"))
}

func TestCommandEmitterFailure(t *testing.T) {
	g := testingutils.NewGomegaWithT(t)
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	e, err := evidence.NewCommandEmitter([]string{"sh", "-c", "exit 3"})
	g.Expect(err).NotTo(HaveOccurred())
	e.Stderr = &bytes.Buffer{}

	err = e.Emit(context.Background(), evidence.Subject{Stage: v1alpha1.Dev})
	var exitErr *exec.ExitError
	g.Expect(errors.As(err, &exitErr)).To(BeTrue())
	g.Expect(exitErr.ExitCode()).To(Equal(3))

	_, err = evidence.NewCommandEmitter(nil)
	g.Expect(err).To(MatchError(evidence.ErrCommandEmpty))
}
