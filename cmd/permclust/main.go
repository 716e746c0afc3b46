package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"permclust/internal/dataio"
	"permclust/internal/models"
	"permclust/internal/monitoring"
	"permclust/pkg/config"
	"permclust/pkg/distribution"
	"permclust/pkg/ndvar"
	"permclust/pkg/reducer"
	"permclust/pkg/store"
	"permclust/pkg/testfamily"
)

func main() {
	// Parse command line arguments
	dataPath := flag.String("data", "", "CSV file with one row per case")
	sensorsPath := flag.String("sensors", "", "CSV file with sensor locations (name,x,y,z[,parc])")
	configPath := flag.String("config", "permclust.yaml", "Configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	testName := flag.String("test", "t1samp", "Test: t1samp, trel, tind, corr, or anova")
	condA := flag.String("a", "", "First condition (t1samp, trel, tind)")
	condB := flag.String("b", "", "Second condition (trel, tind)")
	samples := flag.Int("samples", 0, "Number of permutations (-1 for all)")
	threshold := flag.String("threshold", "", "Cluster threshold, \"tfce\", or \"raw\"")
	pmin := flag.Float64("pmin", 0, "Cluster threshold as an uncorrected p-value")
	tail := flag.Int("tail", 0, "Tail of the test: -1, 0, or 1")
	seed := flag.Uint64("seed", 0, "Seed for random permutations")
	workers := flag.Int("workers", 0, "Permutation workers (0 runs sequentially)")
	cachePath := flag.String("cache", "", "SQLite file caching finished distributions")
	verbose := flag.Bool("verbose", false, "Log permutation progress")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *dataPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// flags given on the command line override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "samples":
			cfg.Permutation.Samples = *samples
		case "threshold":
			cfg.Test.Threshold = *threshold
			cfg.Test.PMin = 0
		case "pmin":
			cfg.Test.PMin = *pmin
			cfg.Test.Threshold = ""
		case "tail":
			cfg.Test.Tail = *tail
		case "seed":
			cfg.Permutation.Seed = *seed
		case "workers":
			cfg.Processing.NumWorkers = *workers
		case "cache":
			cfg.Cache.Path = *cachePath
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	monitoring.SetVerbose(cfg.Output.Verbose)

	rec, err := dataio.LoadCSV(*dataPath, nil)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *dataPath, err)
	}
	var sensors *ndvar.Sensor
	if *sensorsPath != "" {
		if sensors, err = dataio.LoadSensors(*sensorsPath, 0); err != nil {
			log.Fatalf("Failed to load %s: %v", *sensorsPath, err)
		}
	}
	dims, err := dataio.Dims(rec, sensors)
	if err != nil {
		log.Fatalf("Failed to set up dimensions: %v", err)
	}

	test, err := buildTest(*testName, rec, dims, *condA, *condB)
	if err != nil {
		log.Fatalf("Failed to set up %s: %v", *testName, err)
	}

	params, err := cfg.DistributionParams(test.Threshold)
	if err != nil {
		log.Fatalf("Invalid test parameters: %v", err)
	}
	src, err := test.Source(params.Samples, cfg.Permutation.Seed)
	if err != nil {
		log.Fatalf("Failed to set up permutations: %v", err)
	}
	params.Samples = src.Len()
	params.Meas = test.Meas
	params.Name = strings.TrimSuffix(filepath.Base(*dataPath), filepath.Ext(*dataPath))

	fmt.Println("================================")
	fmt.Printf("%s on %s (%d cases)\n", test.Name, filepath.Base(*dataPath), test.Y.Cases())
	fmt.Printf("Threshold: %s, tail: %d, permutations: %d, mode: %s\n", params.Threshold, params.Tail, params.Samples, params.Mode)
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	compute := func(ctx context.Context) (*distribution.Dist, error) {
		d, err := distribution.New(test.Y, params)
		if err != nil {
			return nil, err
		}
		if err := d.AddOriginal(test.Map); err != nil {
			return nil, err
		}
		if err := d.Run(ctx, src, test.Recompute); err != nil {
			return nil, err
		}
		return d, nil
	}

	startTime := time.Now()
	var d *distribution.Dist
	if cfg.Cache.Path != "" {
		d, err = cachedCompute(ctx, cfg.Cache.Path, func() (string, error) {
			return cacheKey(*dataPath, *sensorsPath, *testName, *condA, *condB, cfg)
		}, compute)
	} else {
		d, err = compute(ctx)
	}
	if err != nil {
		log.Fatalf("Permutation test failed: %v", err)
	}

	fmt.Printf("\n%s\n", d)
	fmt.Printf("Completed in %.2f seconds\n\n", time.Since(startTime).Seconds())

	if d.Samples() == 0 && d.Kind() != reducer.KindCluster {
		return
	}
	var filter *float64
	if d.Samples() > 0 {
		filter = &cfg.Output.PMin
	}
	table, err := d.Clusters(filter, false, nil)
	if err != nil {
		log.Fatalf("Failed to compute cluster table: %v", err)
	}
	if table.Len() == 0 {
		fmt.Println("No clusters.")
		return
	}
	fmt.Print(table.String())
}

// cachedCompute answers from the cache at path, computing and storing the
// distribution on a miss. The store is closed before returning.
func cachedCompute(ctx context.Context, path string, key func() (string, error), compute func(context.Context) (*distribution.Dist, error)) (*distribution.Dist, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer st.Close()
	k, err := key()
	if err != nil {
		return nil, fmt.Errorf("cache key: %w", err)
	}
	return st.LoadOrCompute(ctx, k, compute)
}

// buildTest selects the cases of a test and binds them to its test family.
func buildTest(name string, rec *models.Recording, dims []ndvar.Dimension, a, b string) (*testfamily.Test, error) {
	inCond := func(cond string) func(models.Case) bool {
		return func(c models.Case) bool { return cond == "" || c.Condition == cond }
	}
	switch name {
	case "t1samp":
		cases := rec.Select(inCond(a))
		y, err := dataio.Dataset("y", dims, cases)
		if err != nil {
			return nil, err
		}
		return testfamily.T1Samp(y, 0, units(cases))

	case "trel":
		if a == "" || b == "" {
			return nil, errors.New("trel needs -a and -b")
		}
		ca, cb := bySubject(rec.Select(inCond(a))), bySubject(rec.Select(inCond(b)))
		if len(ca) != len(cb) {
			return nil, fmt.Errorf("%d subjects in %s and %d in %s", len(ca), a, len(cb), b)
		}
		for i := range ca {
			if ca[i].Subject != cb[i].Subject {
				return nil, fmt.Errorf("subject %q of %s has no match in %s", ca[i].Subject, a, b)
			}
		}
		ya, err := dataio.Dataset("y", dims, ca)
		if err != nil {
			return nil, err
		}
		yb, err := dataio.Dataset("y", dims, cb)
		if err != nil {
			return nil, err
		}
		return testfamily.TRel(ya, yb)

	case "tind":
		if a == "" || b == "" {
			return nil, errors.New("tind needs -a and -b")
		}
		cases := rec.Select(func(c models.Case) bool { return c.Condition == a || c.Condition == b })
		group := make([]bool, len(cases))
		for i, c := range cases {
			group[i] = c.Condition == a
		}
		y, err := dataio.Dataset("y", dims, cases)
		if err != nil {
			return nil, err
		}
		return testfamily.TInd(y, group)

	case "corr":
		cases := rec.Select(inCond(a))
		x := make([]float64, len(cases))
		for i, c := range cases {
			x[i] = c.Predictor
		}
		y, err := dataio.Dataset("y", dims, cases)
		if err != nil {
			return nil, err
		}
		return testfamily.Corr(y, x)

	case "anova":
		cases := rec.Select(nil)
		groups := make([]string, len(cases))
		for i, c := range cases {
			groups[i] = c.Condition
		}
		y, err := dataio.Dataset("y", dims, cases)
		if err != nil {
			return nil, err
		}
		return testfamily.ANOVA1(y, groups)
	}
	return nil, fmt.Errorf("unknown test %q", name)
}

// units groups cases by subject when subjects repeat, so that their signs
// flip together.
func units(cases []models.Case) []string {
	seen := map[string]bool{}
	repeated := false
	out := make([]string, len(cases))
	for i, c := range cases {
		out[i] = c.Subject
		if seen[c.Subject] {
			repeated = true
		}
		seen[c.Subject] = true
	}
	if !repeated {
		return nil
	}
	return out
}

func bySubject(cases []models.Case) []models.Case {
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].Subject < cases[j].Subject })
	return cases
}

// cacheKey identifies a distribution by the content of its inputs and the
// settings that change it.
func cacheKey(dataPath, sensorsPath, test, a, b string, cfg *config.Config) (string, error) {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return "", err
	}
	if sensorsPath != "" {
		s, err := os.ReadFile(sensorsPath)
		if err != nil {
			return "", err
		}
		data = append(data, s...)
	}
	// execution and output settings do not change the distribution
	c := *cfg
	c.Processing = config.DefaultConfig().Processing
	c.Output = config.DefaultConfig().Output
	c.Cache.Path = ""
	settings, err := yaml.Marshal(&c)
	if err != nil {
		return "", err
	}
	data = append(data, fmt.Sprintf("%s|%s|%s|", test, a, b)...)
	data = append(data, settings...)
	return uuid.NewSHA1(uuid.NameSpaceOID, data).String(), nil
}
