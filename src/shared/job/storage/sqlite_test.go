package jobstorage_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
	. "github.com/veedubyou/stemsplit/src/shared/testing"
)

var _ = Describe("SQLite", func() {
	var (
		sqlite *jobstorage.SQLite
		store  jobentity.Store
	)

	BeforeEach(func() {
		sqlite = ExpectSuccess(jobstorage.OpenSQLite(filepath.Join(GinkgoT().TempDir(), "jobs.db")))
		DeferCleanup(sqlite.Close)
		store = sqlite
	})

	itStoresJobs(&store)

	It("lists recent jobs across owners", func() {
		ctx := context.Background()
		created := time.UnixMilli(time.Now().UnixMilli()).UTC()

		jobs := []jobentity.Job{
			{ID: "a", Owner: "alice", State: jobentity.Running, InputRef: "ref", CreatedAt: created},
			{ID: "b", Owner: "alice", State: jobentity.Succeeded, InputRef: "ref", CreatedAt: created.Add(time.Minute)},
			{ID: "c", Owner: "bob", State: jobentity.Queued, InputRef: "ref", CreatedAt: created.Add(2 * time.Minute)},
		}
		for _, job := range jobs {
			Expect(store.PutJob(ctx, job)).To(Succeed())
		}

		recent := ExpectSuccess(sqlite.ListRecentJobs(ctx, 2))
		Expect(recent).To(HaveLen(2))
		Expect(recent[0].ID).To(Equal("c"))
		Expect(recent[1].ID).To(Equal("b"))
	})
})
