package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"iceflow/internal/storage"
	iceapi "iceflow/pkg/iceflow"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "predict":
		return runPredict(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "processor":
		return runProcessor(ctx, args[1:])
	case "project":
		return runProject(ctx, args[1:])
	case "reconstruct":
		return runReconstruct(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: iceflowctl <init|train|predict|runs|processor|project|reconstruct> [flags]", msg)
}

func newClient(storeKind, dbPath string) (*iceapi.Client, error) {
	return iceapi.New(iceapi.Options{StoreKind: storeKind, DBPath: dbPath})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "iceflow.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional train config JSON path; explicitly set flags override it")
	featuresPath := fs.String("features", "", "forcing feature matrix CSV path")
	targetsPath := fs.String("targets", "", "target vector CSV path")
	seed := fs.Int64("seed", 1, "rng seed")
	epochs := fs.Int("epochs", 100, "shared epoch count for both sub-models")
	flowEpochs := fs.Int("nf-epochs", 0, "flow epoch override (0 uses -epochs)")
	ensembleEpochs := fs.Int("de-epochs", 0, "ensemble epoch override (0 uses -epochs)")
	ensembleSize := fs.Int("ensemble-size", 3, "ensemble member count")
	batchSize := fs.Int("batch-size", 64, "training batch size")
	sequenceLength := fs.Int("sequence-length", 5, "recurrent window length")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "iceflow.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := loadOrDefaultTrainRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = iceapi.TrainRequest{
			Seed:           *seed,
			Epochs:         *epochs,
			FlowEpochs:     *flowEpochs,
			EnsembleEpochs: *ensembleEpochs,
			EnsembleSize:   *ensembleSize,
			BatchSize:      *batchSize,
			SequenceLength: *sequenceLength,
		}
	} else {
		applyTrainFlagOverrides(&req, visitedFlags(fs), trainFlagValues{
			Seed:           *seed,
			Epochs:         *epochs,
			FlowEpochs:     *flowEpochs,
			EnsembleEpochs: *ensembleEpochs,
			EnsembleSize:   *ensembleSize,
			BatchSize:      *batchSize,
			SequenceLength: *sequenceLength,
		})
	}

	if *featuresPath == "" || *targetsPath == "" {
		return fmt.Errorf("train requires -features and -targets")
	}
	features, err := readMatrixCSV(*featuresPath)
	if err != nil {
		return fmt.Errorf("read features: %w", err)
	}
	targets, err := readVectorCSV(*targetsPath)
	if err != nil {
		return fmt.Errorf("read targets: %w", err)
	}
	req.Features = features
	req.Targets = targets

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run=%s checkpoint=%s samples=%s flow_epochs=%d ensemble_epochs=%d flow_nll=%.4f ensemble_loss=%.4f\n",
		summary.RunID, summary.CheckpointID,
		humanize.Comma(int64(len(features))),
		summary.FlowEpochs, summary.EnsembleEpochs,
		summary.FinalFlowLoss, summary.FinalEnsLoss)
	return nil
}

func runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	runID := fs.String("run-id", "", "training run id")
	featuresPath := fs.String("features", "", "forcing feature matrix CSV path")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "iceflow.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" || *featuresPath == "" {
		return fmt.Errorf("predict requires -run-id and -features")
	}

	features, err := readMatrixCSV(*featuresPath)
	if err != nil {
		return fmt.Errorf("read features: %w", err)
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.Predict(ctx, iceapi.PredictRequest{RunID: *runID, Features: features})
	if err != nil {
		return err
	}

	fmt.Println("prediction,epistemic,aleatoric")
	for i := range summary.Predictions {
		fmt.Printf("%g,%g,%g\n", summary.Predictions[i], summary.Epistemic[i], summary.Aleatoric[i])
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "maximum number of runs to list (0 lists all)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "iceflow.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	items, err := client.Runs(ctx, iceapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no training runs recorded")
		return nil
	}

	for _, item := range items {
		retrain := ""
		if item.Retrained {
			retrain = " retrained"
		}
		fmt.Printf("%s  %s  samples=%s features=%d ensemble=%d flow_epochs=%d ensemble_epochs=%d window=%d checkpoint=%s%s\n",
			item.RunID, item.CreatedAtUTC,
			humanize.Comma(int64(item.Samples)), item.Features,
			item.EnsembleSize, item.FlowEpochs, item.EnsembleEpochs,
			item.SequenceLength, item.CheckpointID, retrain)
	}
	return nil
}

func runProcessor(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("processor", flag.ContinueOnError)
	dataPath := fs.String("data", "", "grid data CSV path")
	components := fs.Int("components", 0, "exact principal component count")
	variance := fs.Float64("variance", 0, "explained variance fraction in (0,1)")
	rankCap := fs.Int("rank-cap", 0, "internal decomposition rank cap (0 uses default)")
	seed := fs.Int64("seed", 1, "rng seed")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "iceflow.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataPath == "" {
		return fmt.Errorf("processor requires -data")
	}

	grid, err := readMatrixCSV(*dataPath)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.TrainProcessor(ctx, iceapi.ProcessorTrainRequest{
		Grid:             grid,
		Components:       *components,
		VarianceFraction: *variance,
		RankCap:          *rankCap,
		Seed:             *seed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("scaler=%s pca=%s components=%d rows=%s\n",
		summary.ScalerCheckpointID, summary.PCACheckpointID,
		summary.Components, humanize.Comma(int64(len(grid))))
	return nil
}

func runProject(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("project", flag.ContinueOnError)
	scalerID := fs.String("scaler-id", "", "scaler checkpoint id")
	pcaID := fs.String("pca-id", "", "pca checkpoint id")
	dataPath := fs.String("data", "", "grid data CSV path")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "iceflow.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scalerID == "" || *pcaID == "" || *dataPath == "" {
		return fmt.Errorf("project requires -scaler-id, -pca-id and -data")
	}

	data, err := readMatrixCSV(*dataPath)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	pcs, err := client.Project(ctx, iceapi.ProjectRequest{
		ScalerCheckpointID: *scalerID,
		PCACheckpointID:    *pcaID,
		Data:               data,
	})
	if err != nil {
		return err
	}

	printRows(pcs)
	return nil
}

func runReconstruct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reconstruct", flag.ContinueOnError)
	scalerID := fs.String("scaler-id", "", "scaler checkpoint id")
	pcaID := fs.String("pca-id", "", "pca checkpoint id")
	dataPath := fs.String("data", "", "PCA-space data CSV path")
	unscale := fs.Bool("unscale", true, "undo standardization after the inverse projection")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "iceflow.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scalerID == "" || *pcaID == "" || *dataPath == "" {
		return fmt.Errorf("reconstruct requires -scaler-id, -pca-id and -data")
	}

	pcs, err := readMatrixCSV(*dataPath)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	grid, err := client.Reconstruct(ctx, iceapi.ReconstructRequest{
		ScalerCheckpointID: *scalerID,
		PCACheckpointID:    *pcaID,
		PCs:                pcs,
		Unscale:            *unscale,
	})
	if err != nil {
		return err
	}

	printRows(grid)
	return nil
}

func printRows(rows [][]float64) {
	for _, row := range rows {
		parts := make([]string, len(row))
		for j, v := range row {
			parts[j] = fmt.Sprintf("%g", v)
		}
		fmt.Println(strings.Join(parts, ","))
	}
}
