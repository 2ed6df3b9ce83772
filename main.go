// Command spikesort runs the clustering and merge engine over detected
// spike features and emits a (time, cluster id) spike train.
//
// Two pipelines are available: the mixture pipeline (per-channel
// variational fits, global aggregation, Mahalanobis-gated merging) and
// the stability-based splitting pipeline, which works directly on
// waveforms loaded from the standardized recording.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/spikesort/internal/cluster"
	"github.com/banshee-data/spikesort/internal/cluster/split"
	"github.com/banshee-data/spikesort/internal/config"
	"github.com/banshee-data/spikesort/internal/store"
	"github.com/banshee-data/spikesort/internal/vbmix"
	"github.com/banshee-data/spikesort/internal/version"
	"github.com/banshee-data/spikesort/internal/waveform"
)

func main() {
	var (
		featuresPath = flag.String("features", "", "CSV of per-spike feature vectors (one row per spike)")
		spikesPath   = flag.String("spikes", "", "CSV of spike references: time,channel per row")
		maskPath     = flag.String("mask", "", "optional CSV of per-spike mask weights (coreset mode)")
		groupPath    = flag.String("group", "", "optional CSV of per-spike group ids (coreset mode)")
		mode         = flag.String("mode", "mixture", "pipeline: mixture or split")
		channels     = flag.Int("channels", 0, "channel count of the probe (required)")
		workers      = flag.Int("workers", 4, "parallel per-channel fits / chunk reads")
		noMerge      = flag.Bool("no-merge", false, "skip merge consolidation (mixture mode)")
		minSpikes    = flag.Float64("min-spikes", cluster.DefaultMinSpikes, "minimum responsibility mass per component")
		mergeGate    = flag.Float64("merge-gate", cluster.DefaultMergeGate, "squared Mahalanobis merge gate")
		pcaDims      = flag.Int("pca-dims", cluster.DefaultPCADims, "projected dimensionality (split mode)")
		recording    = flag.String("recording", "", "standardized float32 recording binary (split mode)")
		paramsPath   = flag.String("recording-params", "", "yaml companion parameter record (split mode)")
		halfWindow   = flag.Int("half-window", 15, "samples kept each side of a spike (split mode)")
		dbPath       = flag.String("db", "", "optional sqlite database to persist the run")
		outPath      = flag.String("out", "", "optional CSV to write the spike train to")
		tuningPath   = flag.String("tuning", "", "optional JSON file overriding engine tuning values")
		showVersion  = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("spikesort %s (%s) built %s\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *channels <= 0 {
		log.Fatal("missing or invalid -channels")
	}
	if *spikesPath == "" {
		log.Fatal("missing -spikes")
	}

	cfg := cluster.DefaultConfig(*channels)
	cfg.MinSpikes = *minSpikes
	cfg.MergeGate = *mergeGate
	cfg.PCADims = *pcaDims
	cfg.Workers = *workers
	if *tuningPath != "" {
		tuning, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatal("load tuning config", zap.Error(err))
		}
		cfg = tuning.ApplyTo(cfg)
	}

	refs, err := loadSpikeRefs(*spikesPath)
	if err != nil {
		log.Fatal("load spike references", zap.Error(err))
	}

	started := time.Now()
	var rows []cluster.TrainRow
	switch *mode {
	case "mixture":
		rows, err = runMixture(cfg, *featuresPath, *maskPath, *groupPath, refs, !*noMerge, log)
	case "split":
		rows, err = runSplit(cfg, *recording, *paramsPath, *halfWindow, refs, log)
	default:
		log.Fatal("unknown mode", zap.String("mode", *mode))
	}
	if err != nil {
		log.Fatal("pipeline failed", zap.Error(err))
	}

	clusters := make(map[int]bool)
	for _, r := range rows {
		clusters[r.Cluster] = true
	}
	log.Info("sorting complete",
		zap.Int("spikes", len(rows)),
		zap.Int("clusters", len(clusters)),
		zap.Duration("elapsed", time.Since(started)))

	if *outPath != "" {
		if err := writeTrain(*outPath, rows); err != nil {
			log.Fatal("write spike train", zap.Error(err))
		}
	}
	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			log.Fatal("open database", zap.Error(err))
		}
		defer db.Close()
		runID, err := db.InsertRun(*recording, *mode, *channels, rows)
		if err != nil {
			log.Fatal("persist run", zap.Error(err))
		}
		log.Info("run persisted", zap.String("runID", runID))
	}
}

func runMixture(cfg cluster.Config, featuresPath, maskPath, groupPath string, refs []cluster.SpikeRef, merge bool, log *zap.Logger) ([]cluster.TrainRow, error) {
	if featuresPath == "" {
		return nil, fmt.Errorf("mixture mode requires -features")
	}
	features, err := loadFloatRows(featuresPath)
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}

	aux, err := loadAux(cfg, maskPath, groupPath, refs)
	if err != nil {
		return nil, err
	}

	sorter := vbmix.New(vbmix.DefaultOptions())
	orch := cluster.NewOrchestrator(sorter, cfg, log)
	global, err := orch.Run(features, refs, aux)
	if err != nil {
		return nil, err
	}
	log.Info("aggregation complete", zap.Int("components", global.NumComponents()))

	if merge && global.NumComponents() > 1 {
		engine := cluster.NewMergeEngine(sorter, cfg, log)
		if err := engine.Consolidate(global); err != nil {
			return nil, err
		}
		log.Info("merge consolidation complete", zap.Int("components", global.NumComponents()))
	}
	return global.SpikeTrain(), nil
}

func runSplit(cfg cluster.Config, recording, paramsPath string, halfWindow int, refs []cluster.SpikeRef, log *zap.Logger) ([]cluster.TrainRow, error) {
	if recording == "" || paramsPath == "" {
		return nil, fmt.Errorf("split mode requires -recording and -recording-params")
	}
	params, err := waveform.ReadParams(paramsPath)
	if err != nil {
		return nil, err
	}
	reader, err := waveform.NewReader(recording, params, halfWindow, log,
		waveform.WithWorkers(cfg.Workers))
	if err != nil {
		return nil, err
	}
	pipeline := split.NewPipeline(vbmix.New(vbmix.DefaultOptions()), reader, cfg, log)
	return pipeline.Run(context.Background(), refs)
}

// loadAux assembles per-channel mask/group arrays from the per-spike CSV
// files, in the same ascending scan order the orchestrator uses.
func loadAux(cfg cluster.Config, maskPath, groupPath string, refs []cluster.SpikeRef) ([]cluster.ChannelAux, error) {
	if maskPath == "" && groupPath == "" {
		return nil, nil
	}
	if maskPath == "" || groupPath == "" {
		return nil, fmt.Errorf("-mask and -group must be given together")
	}
	maskRows, err := loadFloatRows(maskPath)
	if err != nil {
		return nil, fmt.Errorf("load mask: %w", err)
	}
	groupRows, err := loadFloatRows(groupPath)
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}
	if len(maskRows) != len(refs) || len(groupRows) != len(refs) {
		return nil, fmt.Errorf("mask/group row counts (%d,%d) do not match %d spikes",
			len(maskRows), len(groupRows), len(refs))
	}
	aux := make([]cluster.ChannelAux, cfg.ChannelCount)
	for i, r := range refs {
		aux[r.Channel].Mask = append(aux[r.Channel].Mask, maskRows[i][0])
		aux[r.Channel].Group = append(aux[r.Channel].Group, int(groupRows[i][0]))
	}
	return aux, nil
}

func loadFloatRows(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(records))
	for i, rec := range records {
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: invalid float %q", i+1, j+1, field)
			}
			row[j] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func loadSpikeRefs(path string) ([]cluster.SpikeRef, error) {
	rows, err := loadFloatRows(path)
	if err != nil {
		return nil, err
	}
	refs := make([]cluster.SpikeRef, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("row %d: want time,channel", i+1)
		}
		refs[i] = cluster.SpikeRef{Time: int64(row[0]), Channel: int(row[1])}
	}
	return refs, nil
}

func writeTrain(path string, rows []cluster.TrainRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for _, r := range rows {
		if err := w.Write([]string{
			strconv.FormatInt(r.Time, 10),
			strconv.Itoa(r.Cluster),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
