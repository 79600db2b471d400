package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cloneguard-lab/internal/config"
	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/domain/scoring"
	"cloneguard-lab/internal/domain/services"
	"cloneguard-lab/internal/imaging"
	"cloneguard-lab/internal/inspector"
	"cloneguard-lab/internal/sources"
	"cloneguard-lab/internal/sources/playstore"
	"cloneguard-lab/pkg/logger"
)

// options are the flags shared by every subcommand
type options struct {
	configPath    string
	referencePath string
	failBelow     int
	verbose       bool

	storeID          string
	referencePackage string
}

// exitError carries a non-zero exit without an error message
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "scan",
		Short:         "Score mobile apps for counterfeit risk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (defaults to ./config.yaml when present)")
	root.PersistentFlags().StringVar(&opts.referencePath, "reference", "", "YAML file of known-good reference apps")
	root.PersistentFlags().IntVar(&opts.failBelow, "fail-below", -1, "Exit with status 2 when the risk score is below this value (lower is riskier)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")

	storeCmd := &cobra.Command{
		Use:   "store <listing.json>",
		Short: "Score a store listing saved as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var rec models.StoreRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("failed to parse store listing: %w", err)
			}
			return run(cmd, opts, func(ctx context.Context, s *services.ScanService) (*models.ScanResult, error) {
				return s.ScanEvidence(ctx, &models.Evidence{Store: &rec})
			})
		},
	}

	apkCmd := &cobra.Command{
		Use:   "apk <path>",
		Short: "Inspect and score a local APK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, s *services.ScanService) (*models.ScanResult, error) {
				return s.ScanPackage(ctx, f, st.Size(), services.PackageScanOptions{
					StoreID:          opts.storeID,
					ReferencePackage: opts.referencePackage,
				})
			})
		},
	}
	apkCmd.Flags().StringVar(&opts.storeID, "store-id", "", "Also fetch this store listing (needs store.scraper_url)")
	apkCmd.Flags().StringVar(&opts.referencePackage, "reference-package", "", "Compare against this reference package")

	fetchCmd := &cobra.Command{
		Use:   "fetch <id-or-url>",
		Short: "Fetch a live store listing and score it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *services.ScanService) (*models.ScanResult, error) {
				return s.ScanStore(ctx, args[0])
			})
		},
	}

	root.AddCommand(storeCmd, apkCmd, fetchCmd)
	return root
}

type scanFunc func(ctx context.Context, s *services.ScanService) (*models.ScanResult, error)

func run(cmd *cobra.Command, opts *options, scan scanFunc) error {
	log := logger.NewNop()
	if opts.verbose {
		log = logger.NewWithWriter(logger.Config{Level: "debug", Format: "console"}, cmd.ErrOrStderr())
	}

	svc, err := buildService(opts, log)
	if err != nil {
		return err
	}

	result, err := scan(cmd.Context(), svc)
	if err != nil {
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if opts.failBelow >= 0 && result.Score.RiskScore < opts.failBelow {
		return &exitError{code: 2}
	}
	return nil
}

func buildService(opts *options, log *logger.Logger) (*services.ScanService, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	weights, err := cfg.ScoringWeights()
	if err != nil {
		return nil, err
	}
	engine, err := scoring.NewEngine(scoring.Options{
		Weights:              weights,
		Brands:               cfg.Scoring.Brands,
		SensitivePermissions: cfg.Scoring.SensitivePermissions,
		Hasher:               imaging.NewPHasher(),
	})
	if err != nil {
		return nil, err
	}

	connCfg := sources.DefaultConfig()
	connCfg.Enabled = true
	connCfg.APIURL = cfg.Store.ScraperURL
	if cfg.Store.Lang != "" {
		connCfg.Lang = cfg.Store.Lang
	}
	if cfg.Store.Country != "" {
		connCfg.Country = cfg.Store.Country
	}
	if cfg.Store.Timeout > 0 {
		connCfg.Timeout = cfg.Store.Timeout
	}
	registry := sources.NewRegistry(log)
	if err := registry.Register(playstore.NewConnector(connCfg, log)); err != nil {
		return nil, err
	}

	deps := services.ScanDependencies{
		Engine:    engine,
		Fetcher:   registry,
		Inspector: inspector.NewAPKInspector(log),
	}
	if opts.referencePath != "" {
		refs, err := loadReferences(opts.referencePath)
		if err != nil {
			return nil, err
		}
		deps.References = refs
	}

	return services.NewScanService(deps, log), nil
}

func writeResult(w io.Writer, result *models.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
