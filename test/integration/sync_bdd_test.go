//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/hawkeye/internal/domain"
	"github.com/eliteGoblin/hawkeye/internal/infra"
	"github.com/eliteGoblin/hawkeye/internal/usecase"
	"github.com/eliteGoblin/hawkeye/internal/validate"
	"github.com/eliteGoblin/hawkeye/test/fixtures"
)

func outcomes(results []domain.SyncResult) map[domain.ArtifactKind]domain.SyncOutcome {
	m := make(map[domain.ArtifactKind]domain.SyncOutcome, len(results))
	for _, r := range results {
		m[r.Kind] = r.Outcome
	}
	return m
}

func resultFor(results []domain.SyncResult, kind domain.ArtifactKind) domain.SyncResult {
	for _, r := range results {
		if r.Kind == kind {
			return r
		}
	}
	Fail(fmt.Sprintf("no result for %s", kind))
	return domain.SyncResult{}
}

var _ = Describe("Synchronizer", func() {
	const (
		blacklistV1 = `["calc.exe"]`
		blacklistV2 = `["calc.exe", "notepad.exe"]`
		guardV1     = "#!/bin/sh\nexit 0\n"
	)

	var (
		ctx     context.Context
		tmpDir  string
		server  *fixtures.ArtifactServer
		store   *infra.FileStore
		syncer  *usecase.SynchronizerImpl
		journal *infra.EncryptedStateStore
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tmpDir, err = os.MkdirTemp("", "hawkeye-integration-*")
		Expect(err).NotTo(HaveOccurred())

		server = fixtures.NewArtifactServer()
		server.Serve("/config.json", fixtures.ContentTypeJSON, server.ConfigDocument(10))
		server.Serve("/blacklist.json", fixtures.ContentTypeJSON, []byte(blacklistV1))
		server.Serve("/guard", fixtures.ContentTypeBinary, []byte(guardV1))

		store = infra.NewFileStore(tmpDir)
		Expect(store.Replace(domain.KindConfig, server.ConfigDocument(10))).To(Succeed())

		journal, err = infra.OpenStateStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		syncer = usecase.NewSynchronizer(
			store,
			infra.NewHTTPFetcher(2*time.Second, "hawkeye-integration"),
			validate.NewValidator(),
			journal,
			infra.NopMetrics{},
			zap.NewNop(),
		)
	})

	AfterEach(func() {
		journal.Close()
		server.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("SyncAll", func() {
		Context("when every remote artifact is healthy", func() {
			It("should persist them and converge", func() {
				results := syncer.SyncAll(ctx)
				Expect(outcomes(results)).To(Equal(map[domain.ArtifactKind]domain.SyncOutcome{
					domain.KindConfig:    domain.OutcomeUnchanged,
					domain.KindBlacklist: domain.OutcomeUpdated,
					domain.KindGuard:     domain.OutcomeUpdated,
				}))

				data, err := store.Read(domain.KindBlacklist)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(blacklistV1))

				info, err := os.Stat(store.Path(domain.KindGuard))
				Expect(err).NotTo(HaveOccurred())
				Expect(info.Mode().Perm() & 0100).NotTo(BeZero())

				// Nothing changed remotely, so nothing is rewritten
				results = syncer.SyncAll(ctx)
				for _, r := range results {
					Expect(r.Outcome).To(Equal(domain.OutcomeUnchanged))
					Expect(r.Changed).To(BeFalse())
				}
				Expect(store.BackupExists(domain.KindBlacklist)).To(BeFalse())
			})

			It("should journal every artifact of the pass", func() {
				syncer.SyncAll(ctx)

				entries, err := journal.RecentSyncs(10)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(3))
				Expect(entries[0].PassID).To(Equal(entries[2].PassID))
			})
		})

		Context("when the deny-list changes remotely", func() {
			It("should keep the previous copy as the backup", func() {
				syncer.SyncAll(ctx)
				server.Serve("/blacklist.json", fixtures.ContentTypeJSON, []byte(blacklistV2))

				results := syncer.SyncAll(ctx)
				Expect(resultFor(results, domain.KindBlacklist).Outcome).To(Equal(domain.OutcomeUpdated))

				data, err := store.Read(domain.KindBlacklist)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(blacklistV2))

				backup, err := store.ReadBackup(domain.KindBlacklist)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(backup)).To(Equal(blacklistV1))
			})
		})

		Context("when the config moves the deny-list", func() {
			It("should fetch from the new URL in the same pass", func() {
				moved := []byte(fmt.Sprintf(`{"urls": {"config": %q, "blacklist": %q}}`,
					server.URL("/config.json"), server.URL("/v2/blacklist.json")))
				server.Serve("/config.json", fixtures.ContentTypeJSON, moved)
				server.Serve("/v2/blacklist.json", fixtures.ContentTypeJSON, []byte(blacklistV2))

				results := syncer.SyncAll(ctx)
				Expect(resultFor(results, domain.KindConfig).Outcome).To(Equal(domain.OutcomeUpdated))
				Expect(resultFor(results, domain.KindBlacklist).Outcome).To(Equal(domain.OutcomeUpdated))
				Expect(server.Hits("/v2/blacklist.json")).To(Equal(1))
				Expect(server.Hits("/blacklist.json")).To(BeZero())
			})
		})
	})

	Describe("Captive portal responses", func() {
		BeforeEach(func() {
			syncer.SyncAll(ctx)
		})

		Context("when the deny-list URL serves an HTML login page", func() {
			It("should keep the cached deny-list", func() {
				server.Serve("/blacklist.json", fixtures.ContentTypeHTML, []byte("<html><body>Sign in to Wi-Fi</body></html>"))

				results := syncer.SyncAll(ctx)
				r := resultFor(results, domain.KindBlacklist)
				Expect(r.Outcome).To(Equal(domain.OutcomeCached))
				Expect(r.Err).To(MatchError(domain.ErrRejected))

				data, err := store.Read(domain.KindBlacklist)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(blacklistV1))
			})
		})

		Context("when the guard URL serves markup with a binary content type", func() {
			It("should keep the cached guard", func() {
				server.Serve("/guard", fixtures.ContentTypeBinary, []byte("<!DOCTYPE html><html></html>"))

				results := syncer.SyncAll(ctx)
				Expect(resultFor(results, domain.KindGuard).Outcome).To(Equal(domain.OutcomeCached))

				data, err := store.Read(domain.KindGuard)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(guardV1))
			})
		})

		Context("when the server fails", func() {
			It("should keep every cached artifact", func() {
				server.ServeStatus("/blacklist.json", fixtures.ContentTypeJSON, http.StatusInternalServerError, []byte(`[]`))

				results := syncer.SyncAll(ctx)
				Expect(resultFor(results, domain.KindBlacklist).Outcome).To(Equal(domain.OutcomeCached))

				data, err := store.Read(domain.KindBlacklist)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(blacklistV1))
			})
		})
	})

	Describe("Corruption recovery", func() {
		Context("when the committed config is corrupted on disk", func() {
			It("should restore the backup and keep running on it", func() {
				// Produce a config.json.bak holding the interval-10 document
				server.Serve("/config.json", fixtures.ContentTypeJSON, server.ConfigDocument(20))
				syncer.SyncAll(ctx)
				Expect(store.BackupExists(domain.KindConfig)).To(BeTrue())

				Expect(os.WriteFile(store.Path(domain.KindConfig), []byte("{truncated"), 0644)).To(Succeed())
				server.ServeStatus("/config.json", fixtures.ContentTypeJSON, http.StatusServiceUnavailable, nil)

				results := syncer.SyncAll(ctx)
				Expect(resultFor(results, domain.KindConfig).Outcome).To(Equal(domain.OutcomeCached))

				cfg, err := usecase.LoadConfiguration(store)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.IntervalSeconds).To(Equal(10))
			})
		})

		Context("when both the committed config and its backup are corrupt", func() {
			It("should leave both files alone", func() {
				Expect(os.WriteFile(store.Path(domain.KindConfig), []byte("{bad"), 0644)).To(Succeed())
				Expect(os.WriteFile(store.BackupPath(domain.KindConfig), []byte("<html>"), 0644)).To(Succeed())

				restored, err := syncer.RestoreIfCorrupt(domain.KindConfig)
				Expect(err).To(HaveOccurred())
				Expect(restored).To(BeFalse())

				data, err := store.Read(domain.KindConfig)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("{bad"))
			})
		})
	})
})
