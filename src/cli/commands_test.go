package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
	"github.com/veedubyou/stemsplit/src/shared/lib/working_dir"
	. "github.com/veedubyou/stemsplit/src/shared/testing"
	"github.com/veedubyou/stemsplit/src/shared/testing/dummy"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
)

var _ = Describe("Commands", func() {
	var (
		out  *bytes.Buffer
		args []string
		err  error
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	JustBeforeEach(func() {
		cmd := newRootCommand()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		err = cmd.ExecuteContext(context.Background())
	})

	Describe("models", func() {
		BeforeEach(func() {
			args = []string{"models"}
		})

		It("lists the built-in catalog and marks the default", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(ContainSubstring("bandsplit-4stems*"))
			Expect(out.String()).To(ContainSubstring("bandsplit-2stems"))
			Expect(out.String()).To(ContainSubstring("vocals, drums, bass, other"))
		})
	})

	Describe("separate", func() {
		var (
			dir       string
			inputPath string
			outDir    string
		)

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			outDir = filepath.Join(dir, "out")

			workingDir := ExpectSuccess(working_dir.NewWorkingDir(filepath.Join(dir, "wd")))
			encoder := codec.NewEncoder(codec.NewFFmpeg("/somewhere/ffmpeg", dummy.NewDummyFFmpegExecutor()), workingDir)
			data := ExpectSuccess(encoder.Encode(context.Background(), SineWave(44100, 1, time.Second, 440), codec.WAV))

			inputPath = filepath.Join(dir, "tone.wav")
			Expect(os.WriteFile(inputPath, data, 0o644)).To(Succeed())
		})

		Describe("A wav file", func() {
			BeforeEach(func() {
				args = []string{"separate", inputPath, "--out", outDir}
			})

			It("writes every stem of the default model", func() {
				Expect(err).NotTo(HaveOccurred())

				for _, stem := range []string{"vocals", "drums", "bass", "other"} {
					path := filepath.Join(outDir, stem+".wav")
					Expect(out.String()).To(ContainSubstring(path))

					info := ExpectSuccess(os.Stat(path))
					Expect(info.Size()).To(BeNumerically(">", 44))
				}
			})
		})

		Describe("With another model", func() {
			BeforeEach(func() {
				args = []string{"separate", inputPath, "--out", outDir, "--model", "bandsplit-2stems"}
			})

			It("writes that model's stems", func() {
				Expect(err).NotTo(HaveOccurred())

				entries := ExpectSuccess(os.ReadDir(outDir))
				Expect(entries).To(HaveLen(2))
			})
		})

		Describe("An unsupported file", func() {
			BeforeEach(func() {
				pdf := filepath.Join(dir, "notes.pdf")
				Expect(os.WriteFile(pdf, []byte("%PDF"), 0o644)).To(Succeed())
				args = []string{"separate", pdf}
			})

			It("fails with the unsupported format kind", func() {
				Expect(err).To(HaveOccurred())
				Expect(failure.KindOf(err)).To(Equal(failure.UnsupportedFormat))
			})
		})

		Describe("An unknown output format", func() {
			BeforeEach(func() {
				args = []string{"separate", inputPath, "--format", "midi"}
			})

			It("fails before separating", func() {
				Expect(err).To(HaveOccurred())
				Expect(filepath.Join(dir, "tone-stems")).NotTo(BeADirectory())
			})
		})

		Describe("Without a file", func() {
			BeforeEach(func() {
				args = []string{"separate"}
			})

			It("fails", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("jobs", func() {
		var dbPath string

		BeforeEach(func() {
			dbPath = filepath.Join(GinkgoT().TempDir(), "jobs.db")
			args = []string{"jobs", "--db", dbPath}
		})

		Describe("With recorded jobs", func() {
			BeforeEach(func() {
				store := ExpectSuccess(jobstorage.OpenSQLite(dbPath))
				defer store.Close()

				created := time.Now()
				jobs := []jobentity.Job{
					{
						ID: "job-done", Owner: "alice", State: jobentity.Succeeded, InputRef: "ref",
						Progress: 100, CreatedAt: created,
						StemOutputs: jobentity.StemOutputs{"vocals": "v", "other": "o"},
					},
					{
						ID: "job-failed", Owner: "bob", State: jobentity.Failed, InputRef: "ref",
						CreatedAt: created.Add(time.Minute),
						Error:     &failure.Failure{Kind: failure.EmptyInput, Message: "input has no samples"},
					},
				}
				for _, job := range jobs {
					Expect(store.PutJob(context.Background(), job)).To(Succeed())
				}
			})

			It("prints them in a table", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(out.String()).To(ContainSubstring("job-done"))
				Expect(out.String()).To(ContainSubstring("2 stems"))
				Expect(out.String()).To(ContainSubstring("job-failed"))
				Expect(out.String()).To(ContainSubstring("EmptyInput: input has no samples"))
			})
		})

		Describe("With an empty store", func() {
			It("says so", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(out.String()).To(ContainSubstring("No jobs recorded"))
			})
		})

		Describe("Without --db", func() {
			BeforeEach(func() {
				args = []string{"jobs"}
			})

			It("fails", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("submit", func() {
		Describe("With an input that isn't a URL", func() {
			BeforeEach(func() {
				args = []string{"submit", "--owner", "alice", "--input-ref", "not a url", "--rabbitmq-url", "amqp://localhost:1"}
			})

			It("fails before connecting", func() {
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("Invalid job submission"))
			})
		})

		Describe("Without an owner", func() {
			BeforeEach(func() {
				args = []string{"submit", "--input-ref", "https://storage.googleapis.com/b/x.wav"}
			})

			It("fails", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
