package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/spf13/cobra"

	"github.com/marmos91/s3surge/internal/logger"
	"github.com/marmos91/s3surge/pkg/config"
	"github.com/marmos91/s3surge/pkg/metrics"
	"github.com/marmos91/s3surge/pkg/transport"
	"github.com/marmos91/s3surge/pkg/workload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the transfer workload",
	Long: `Run the configured transfer workload against the target bucket.

The run warms the endpoint's DNS cache, spawns one connection manager per
resolved address, executes the upload phase and then the download phase,
and prints a throughput report.

Examples:
  # Run with default config location
  s3surge run

  # Run with custom config
  s3surge run --config ./s3surge.yaml

  # Override settings through the environment
  S3SURGE_WORKLOAD_NUM_TRANSFERS=100 s3surge run`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		startMetricsServer(cfg.Metrics.Port)
	}

	creds, err := buildCredentials(ctx, cfg)
	if err != nil {
		return err
	}

	t, err := transport.New(transport.Options{
		Bucket:        cfg.S3.Bucket,
		Region:        cfg.S3.Region,
		Endpoint:      cfg.S3.Endpoint,
		SendEncrypted: cfg.S3.SendEncrypted,
		Credentials:   creds,
		Metrics:       metrics.NewTransportMetrics(),
	})
	if err != nil {
		return err
	}
	defer t.Close()

	runner, err := workload.NewRunner(workload.Options{
		Transport:    t,
		NumTransfers: cfg.Workload.NumTransfers,
		NumParts:     cfg.Workload.NumParts,
		PartSize:     cfg.Workload.PartSize.Bytes(),
		Multipart:    cfg.Workload.Multipart,
		Upload:       cfg.Workload.Upload,
		Download:     cfg.Workload.Download,
		KeyPrefix:    cfg.Workload.KeyPrefix,
	})
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printReport(cfg, report)

	if report.UploadFailures > 0 || report.DownloadFailures > 0 {
		return fmt.Errorf("%d uploads and %d downloads failed",
			report.UploadFailures, report.DownloadFailures)
	}
	return nil
}

// buildCredentials returns static credentials from the config when present,
// falling back to the default AWS credential chain.
func buildCredentials(ctx context.Context, cfg *config.Config) (aws.CredentialsProvider, error) {
	if cfg.S3.AccessKeyID != "" {
		return credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.SessionToken,
		), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS credentials: %w", err)
	}
	return awsCfg.Credentials, nil
}

// startMetricsServer serves the Prometheus endpoint in the background for the
// lifetime of the run.
func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
}

func printReport(cfg *config.Config, report *workload.Report) {
	fmt.Println()
	fmt.Println("Run report")
	if cfg.Workload.Upload {
		fmt.Printf("  upload:   %d ok, %d failed, %d bytes in %s (%.2f Gbps)\n",
			report.Uploaded, report.UploadFailures, report.BytesUp,
			report.UploadDuration.Round(time.Millisecond), report.UploadGbps())
	}
	if cfg.Workload.Download {
		fmt.Printf("  download: %d ok, %d failed, %d bytes in %s (%.2f Gbps)\n",
			report.Downloaded, report.DownloadFailures, report.BytesDown,
			report.DownloadDuration.Round(time.Millisecond), report.DownloadGbps())
	}
}
