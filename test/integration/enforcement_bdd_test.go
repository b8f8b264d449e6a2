//go:build integration

package integration

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/hawkeye/internal/daemon"
	"github.com/eliteGoblin/hawkeye/internal/domain"
	"github.com/eliteGoblin/hawkeye/internal/infra"
	"github.com/eliteGoblin/hawkeye/internal/usecase"
	"github.com/eliteGoblin/hawkeye/internal/validate"
	"github.com/eliteGoblin/hawkeye/test/fixtures"
)

// Process names come from the script file name on Linux only.
const victimName = "hawkeye-victim"

var _ = Describe("Enforcement", func() {
	var (
		tmpDir string
		store  *infra.FileStore
		victim *exec.Cmd
		exited chan struct{}
	)

	BeforeEach(func() {
		if runtime.GOOS != "linux" {
			Skip("relies on Linux process naming for scripts")
		}

		var err error
		tmpDir, err = os.MkdirTemp("", "hawkeye-integration-*")
		Expect(err).NotTo(HaveOccurred())
		store = infra.NewFileStore(tmpDir)

		path, err := fixtures.WriteVictim(tmpDir, victimName)
		Expect(err).NotTo(HaveOccurred())

		victim = exec.Command(path)
		Expect(victim.Start()).To(Succeed())
		exited = make(chan struct{})
		go func() {
			_ = victim.Wait()
			close(exited)
		}()

		// Wait until the process is listed under its script name
		pd := infra.NewProcessDirectory()
		Eventually(func() bool {
			names, err := pd.ListRunningNames(context.Background())
			if err != nil {
				return false
			}
			_, ok := names[victimName]
			return ok
		}, 5*time.Second, 50*time.Millisecond).Should(BeTrue())
	})

	AfterEach(func() {
		if victim != nil && victim.Process != nil {
			_ = victim.Process.Kill()
		}
		if tmpDir != "" {
			os.RemoveAll(tmpDir)
		}
	})

	Describe("EnforcerImpl", func() {
		Context("when a running process is on the deny-list", func() {
			It("should terminate it", func() {
				Expect(store.Replace(domain.KindBlacklist, []byte(`["HAWKEYE-VICTIM", "not-running.exe"]`))).To(Succeed())
				enforcer := usecase.NewEnforcer(store, infra.NewProcessDirectory(), infra.NopMetrics{}, zap.NewNop())

				result, err := enforcer.Enforce(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Killed).To(ConsistOf(victimName))
				Expect(result.Errors).To(BeEmpty())
				Eventually(exited, 5*time.Second).Should(BeClosed())
			})
		})

		Context("when the deny-list is empty", func() {
			It("should leave the process alone", func() {
				Expect(store.Replace(domain.KindBlacklist, []byte(`[]`))).To(Succeed())
				enforcer := usecase.NewEnforcer(store, infra.NewProcessDirectory(), infra.NopMetrics{}, zap.NewNop())

				result, err := enforcer.Enforce(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Killed).To(BeEmpty())
				Consistently(exited, 300*time.Millisecond).ShouldNot(BeClosed())
			})
		})
	})

	Describe("Scheduler", func() {
		It("should pick up a deny-list published remotely and enforce it", func() {
			server := fixtures.NewArtifactServer()
			defer server.Close()
			server.Serve("/config.json", fixtures.ContentTypeJSON, server.ConfigDocument(1))
			server.Serve("/blacklist.json", fixtures.ContentTypeJSON, []byte(`["`+victimName+`"]`))
			Expect(store.Replace(domain.KindConfig, server.ConfigDocument(1))).To(Succeed())

			logger := zap.NewNop()
			metrics := infra.NewPrometheusMetrics("")
			syncer := usecase.NewSynchronizer(store,
				infra.NewHTTPFetcher(2*time.Second, "hawkeye-integration"),
				validate.NewValidator(), infra.NopJournal{}, metrics, logger)
			enforcer := usecase.NewEnforcer(store, infra.NewProcessDirectory(), metrics, logger)
			dispatcher := usecase.NewDispatcher(infra.NewCommandNotifier([]string{"true"}),
				infra.NewMemorySignatureStore(), metrics, logger)
			scheduler := daemon.NewScheduler(store, syncer, enforcer, dispatcher, metrics, nil, logger)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- scheduler.Run(ctx) }()

			Eventually(exited, 10*time.Second).Should(BeClosed())
			cancel()
			Eventually(done, 5*time.Second).Should(Receive(BeNil()))
		})
	})
})
