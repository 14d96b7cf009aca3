package bench_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

var _ = Describe("Combinations", func() {
	It("enumerates the cartesian product with the first param slowest", func() {
		combos := bench.Combinations([]bench.Param{
			bench.Ints("size", 8, 16),
			bench.Strings("fs", "scalar", "vector"),
		})
		Expect(combos).To(HaveLen(4))
		Expect(combos[0].Int("size")).To(Equal(8))
		Expect(combos[0].String("fs")).To(Equal("scalar"))
		Expect(combos[1].String("fs")).To(Equal("vector"))
		Expect(combos[2].Int("size")).To(Equal(16))
	})

	It("yields a single empty point without params", func() {
		Expect(bench.Combinations(nil)).To(HaveLen(1))
	})

	It("converts between value kinds", func() {
		v := bench.Values{"n": 3, "x": 0.5, "s": "7"}
		Expect(v.Float("n")).To(Equal(3.0))
		Expect(v.Int("s")).To(Equal(7))
		Expect(v.Strings()).To(HaveKeyWithValue("x", "0.5"))
		_, err := v.Get("missing")
		Expect(errors.Is(err, bench.ErrUnknownParam)).To(BeTrue())
	})

	It("rejects values that do not parse", func() {
		v := bench.Values{"s": "seven", "x": 0.5, "f": "1e-3x"}
		_, err := v.Int("s")
		Expect(err).To(MatchError(bench.ErrInvalidParam))
		_, err = v.Int("x")
		Expect(err).To(MatchError(bench.ErrInvalidParam))
		_, err = v.Float("f")
		Expect(err).To(MatchError(bench.ErrInvalidParam))
		_, err = v.Float("missing")
		Expect(err).To(MatchError(bench.ErrUnknownParam))
	})
})

var _ = Describe("Stats", func() {
	It("computes min, mean and sample std", func() {
		s := bench.Stats([]float64{1, 2, 3})
		Expect(s.Min).To(Equal(1.0))
		Expect(s.Mean).To(BeNumerically("~", 2.0, 1e-12))
		Expect(s.Std).To(BeNumerically("~", 1.0, 1e-12))
		Expect(s.Samples).To(HaveLen(3))
	})

	It("reports zero std for a single sample", func() {
		Expect(bench.Stats([]float64{4}).Std).To(BeZero())
	})
})

var _ = Describe("Benchmark", func() {
	var (
		b     *bench.Benchmark
		calls int
		fn    bench.Func
	)

	BeforeEach(func() {
		calls = 0
		b = &bench.Benchmark{
			Name:    "assembly",
			Params:  []bench.Param{bench.Ints("size", 1, 2), bench.Ints("degree", 1)},
			Regions: []string{"mesh"},
			Series:  storage.Series{NP: 1, Variant: "Go"},
			Repeats: 3,
		}
		fn = func(ctx context.Context, p bench.Values, t *timing.Timer) error {
			calls++
			size, err := p.Int("size")
			if err != nil {
				return err
			}
			t.Add("mesh", float64(size))
			t.Add("setup", 1)
			return nil
		}
	})

	It("runs every combination Repeats times", func() {
		records, err := b.Run(context.Background(), fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(6))
		Expect(records).To(HaveLen(2))
		Expect(records[1].Params).To(HaveKeyWithValue("size", "2"))
		Expect(records[1].Regions["mesh"].Samples).To(HaveLen(3))
		Expect(records[1].Regions[bench.Total].Mean).To(BeNumerically("~", 3.0, 1e-12))
		Expect(b.Regions).To(Equal([]string{"mesh", "setup", bench.Total}))
	})

	It("keeps a total set by the harness", func() {
		records, err := b.Run(context.Background(), func(ctx context.Context, p bench.Values, t *timing.Timer) error {
			t.Add("p", 1)
			t.Add("phi", 1)
			t.Set(bench.Total, 10)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(records[0].Regions[bench.Total].Mean).To(Equal(10.0))
	})

	It("reports progress", func() {
		var seen []bench.Progress
		b.OnProgress = func(p bench.Progress) { seen = append(seen, p) }
		_, err := b.Run(context.Background(), fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(HaveLen(2))
		Expect(seen[1].Done).To(Equal(2))
		Expect(seen[1].Total).To(Equal(2))
	})

	It("stops on harness errors and on cancellation", func() {
		boom := errors.New("boom")
		_, err := b.Run(context.Background(), func(context.Context, bench.Values, *timing.Timer) error { return boom })
		Expect(errors.Is(err, boom)).To(BeTrue())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = b.Run(ctx, fn)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(calls).To(BeZero())
	})

	It("saves and loads results", func() {
		st := storage.New(filepath.Join(GinkgoT().TempDir(), "results"))
		records, err := b.Run(context.Background(), fn)
		Expect(err).NotTo(HaveOccurred())
		id, err := b.Save(st, records)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("assembly_np1_Go"))

		meta, loaded, err := bench.Load(st, "assembly", b.Series)
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.ParamNames).To(Equal([]string{"size", "degree"}))
		Expect(loaded).To(HaveLen(2))

		_, _, err = bench.Load(st, "assembly", storage.Series{NP: 4, Variant: "Go"})
		Expect(errors.Is(err, storage.ErrNoResults)).To(BeTrue())
	})

	It("writes a profile and a region summary", func() {
		dir := GinkgoT().TempDir()
		path, err := b.Profile(context.Background(), fn, dir, []string{"mesh", "setup"})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(2))
		Expect(path).To(BeAnExistingFile())

		names, values, err := storage.ReadElapsed(filepath.Join(dir, "assembly_regions.csv"))
		Expect(err).NotTo(HaveOccurred())
		Expect(names).To(Equal([]string{"mesh", "setup"}))
		Expect(values).To(Equal([]float64{3, 2}))
		_, err = os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
	})
})
