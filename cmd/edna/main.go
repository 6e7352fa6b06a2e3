package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qs3c/edna_go_client/config"
	"github.com/qs3c/edna_go_client/internal/backend"
	"github.com/qs3c/edna_go_client/internal/database"
	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/pipeline"
	"github.com/qs3c/edna_go_client/internal/repository"
	"github.com/qs3c/edna_go_client/internal/store"
	"github.com/qs3c/edna_go_client/internal/stream"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config

	sampleID       int64
	collectionTime string
	depth          float64
	latitude       float64
	longitude      float64
	noFollow       bool
	epochs         int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "edna",
	Short:   "eDNA sequence analysis client",
	Long:    "edna uploads environmental DNA sequencing files to the analysis backend and follows clustering and NCBI verification progress in real time.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			cfg = config.Default()
			return nil
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	uploadCmd.Flags().Int64Var(&sampleID, "sample-id", 0, "Numeric sample identifier")
	uploadCmd.Flags().StringVar(&collectionTime, "collection-time", "", "Sample collection time")
	uploadCmd.Flags().Float64Var(&depth, "depth", 0, "Collection depth in meters")
	uploadCmd.Flags().Float64Var(&latitude, "lat", 0, "Collection latitude")
	uploadCmd.Flags().Float64Var(&longitude, "lon", 0, "Collection longitude")
	uploadCmd.Flags().BoolVar(&noFollow, "no-follow", false, "Submit only, don't stream progress")
	finetuneCmd.Flags().IntVar(&epochs, "epochs", 1, "Training epochs")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(sequenceCmd)
	rootCmd.AddCommand(fastaCmd)
	rootCmd.AddCommand(finetuneCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(healthCmd)
}

func newClient() *backend.Client {
	return backend.NewClient(
		cfg.Backend.BaseURL,
		time.Duration(cfg.Backend.RequestTimeoutSec)*time.Second,
		time.Duration(cfg.Backend.HealthTimeoutSec)*time.Second,
	)
}

// openStore 打开本地缓存库并恢复历史记录
func openStore() (*store.Store, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening local cache: %w", err)
	}

	st := store.New(repository.NewSampleRepository(db))
	if err := st.Initialize(); err != nil {
		return nil, err
	}
	return st, nil
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a FASTA/FASTQ file for analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		ext := strings.ToLower(filepath.Ext(path))
		fileType := ""
		switch ext {
		case ".fasta", ".fa":
			fileType = "fasta"
		case ".fastq", ".fq":
			fileType = "fastq"
		default:
			return fmt.Errorf("unsupported file type %q, expected FASTA/FASTQ", ext)
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		result, err := newClient().Upload(cmd.Context(), filepath.Base(path), file, fileType)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		fmt.Printf("Uploaded, file_id: %s\n", result.FileID)

		st, err := openStore()
		if err != nil {
			return err
		}

		sample := &model.Sample{
			FileID:         result.FileID,
			SampleID:       sampleID,
			Status:         model.StatusUploading,
			FileName:       filepath.Base(path),
			UploadDate:     time.Now(),
			CollectionTime: collectionTime,
		}
		if cmd.Flags().Changed("depth") {
			sample.Depth = &depth
		}
		if cmd.Flags().Changed("lat") {
			sample.Latitude = &latitude
		}
		if cmd.Flags().Changed("lon") {
			sample.Longitude = &longitude
		}
		if err := st.Add(sample); err != nil {
			log.Printf("Failed to cache sample: %v", err)
		}

		if noFollow {
			fmt.Printf("Run `edna follow %s` to stream progress.\n", result.FileID)
			return nil
		}
		return followStream(cmd.Context(), st, result.FileID)
	},
}

var followCmd = &cobra.Command{
	Use:   "follow <fileId>",
	Short: "Stream analysis progress for an uploaded file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		return followStream(cmd.Context(), st, args[0])
	},
}

// followStream 消费进度流直到终止帧。连接在终止帧之前断开时
// 做有限次重试，重试耗尽后保持记录原状退出。
func followStream(ctx context.Context, st *store.Store, fileID string) error {
	stages := pipeline.New()
	printed := make(map[string]bool)

	printStage := func() {
		for _, stage := range stages.Stages() {
			if stage.Status == pipeline.StageComplete && !printed[stage.ID] {
				printed[stage.ID] = true
				fmt.Printf("  ✓ %s\n", stage.Label)
			}
		}
	}

	opts := []stream.Option{
		stream.WithObserver(stages.Apply),
		stream.WithObserver(func(msg stream.Message) {
			if msg.Type == stream.TypeLog && msg.Message != "" {
				fmt.Printf("  %s\n", msg.Message)
			}
			printStage()
		}),
		stream.OnComplete(func(taxa []stream.TaxaRecord, novelCount int) {
			fmt.Printf("\nAnalysis complete: %d taxa, %d novel\n", len(taxa), novelCount)
			for _, record := range taxa {
				marker := " "
				if record.Probability < stream.NovelProbabilityThreshold {
					marker = "*"
				}
				fmt.Printf("  %s %-24s %6d sequences  %5.1f%% match\n", marker, record.Genus, record.Count, record.Probability)
			}
		}),
		stream.OnError(func(message string) {
			fmt.Printf("\nAnalysis failed: %s\n", message)
		}),
	}

	attempts := cfg.Backend.ReconnectAttempts
	delay := time.Duration(cfg.Backend.ReconnectDelaySec) * time.Second

	for attempt := 1; ; attempt++ {
		r := stream.New(cfg.Backend.WSBaseURL, fileID, st, opts...)
		err := r.Run(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, stream.ErrStreamInterrupted) || attempt >= attempts {
			return err
		}
		fmt.Printf("Connection lost, retrying (%d/%d)...\n", attempt, attempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

var sequenceCmd = &cobra.Command{
	Use:   "sequence <dna>",
	Short: "Predict taxonomy for a single raw sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().PredictSequence(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	},
}

var fastaCmd = &cobra.Command{
	Use:   "fasta <file>",
	Short: "Synchronous prediction for a whole FASTA file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		result, err := newClient().PredictFasta(cmd.Context(), filepath.Base(args[0]), file)
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	},
}

var finetuneCmd = &cobra.Command{
	Use:   "finetune <csv>",
	Short: "Fine-tune the backend model with labeled CSV data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		result, err := newClient().Finetune(cmd.Context(), filepath.Base(args[0]), file, epochs)
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached sample records",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}

		samples := st.List()
		if len(samples) == 0 {
			fmt.Println("No samples cached.")
			return nil
		}
		for _, sample := range samples {
			fmt.Printf("%-36s %-12s %-24s %s\n",
				sample.FileID, sample.Status, sample.FileName,
				sample.UploadDate.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <fileId>",
	Short: "Show a cached sample record in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}

		sample, ok := st.Get(args[0])
		if !ok {
			return fmt.Errorf("sample %s not found", args[0])
		}

		fmt.Printf("File:   %s\n", sample.FileName)
		fmt.Printf("Status: %s\n", sample.Status)
		fmt.Printf("Date:   %s\n", sample.UploadDate.Format(time.RFC3339))
		if sample.ErrorMessage != "" {
			fmt.Printf("Error:  %s\n", sample.ErrorMessage)
		}
		if sample.LatestAnalysis != nil {
			fmt.Printf("Sequences: %d, Clusters: %d, Novel: %d\n",
				sample.LatestAnalysis.SequenceCount(),
				sample.LatestAnalysis.ClusterCount(),
				sample.LatestAnalysis.NovelClusterCount())
		}
		if len(sample.Progress) > 0 {
			fmt.Println("Progress:")
			for step, status := range sample.Progress.Latest() {
				fmt.Printf("  %s: %s\n", step, status)
			}
		}
		if len(sample.Logs) > 0 {
			fmt.Println("Logs:")
			for _, line := range sample.Logs {
				fmt.Printf("  %s\n", line)
			}
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <fileId>",
	Short: "Delete a cached sample record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		return st.Delete(args[0])
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached sample records",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		return st.Clear()
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the analysis backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Health(cmd.Context()); err != nil {
			fmt.Printf("Backend offline: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Backend online.")
		return nil
	},
}
