package lambdaaws

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/gosom/scrapemate/adapters/writers/csvwriter"
	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/assets"
	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/exiter"
	"github.com/gosom/google-maps-review-images/harvester"
	"github.com/gosom/google-maps-review-images/runner"
	"github.com/gosom/google-maps-review-images/runner/filerunner"
	"github.com/gosom/google-maps-review-images/s3uploader"
)

const (
	tmpDir          = "/tmp"
	invocationLimit = 14 * time.Minute
)

var _ runner.Runner = (*lambdaAwsRunner)(nil)

var errNoTargets = errors.New("no targets in event")

type lambdaAwsRunner struct {
	cfg      *runner.Config
	uploader runner.S3Uploader
	log      *zap.Logger
}

func New(cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeAwsLambda {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	uploader := cfg.S3Uploader
	if uploader == nil {
		var err error

		uploader, err = ambientUploader()
		if err != nil {
			return nil, err
		}
	}

	ans := lambdaAwsRunner{
		cfg:      cfg,
		uploader: uploader,
		log:      logger,
	}

	return &ans, nil
}

func (l *lambdaAwsRunner) Run(context.Context) error {
	lambda.Start(l.handler)

	return nil
}

func (l *lambdaAwsRunner) Close(context.Context) error {
	return nil
}

//nolint:gocritic // the lambda runtime passes the event by value
func (l *lambdaAwsRunner) handler(ctx context.Context, input lInput) (lOutput, error) {
	targets := input.targets()
	if len(targets) == 0 {
		return lOutput{}, errNoTargets
	}

	if err := setupBrowsersAndDriver(filepath.Join(tmpDir, "browsers"), filepath.Join(tmpDir, "ms-playwright-go")); err != nil {
		return lOutput{}, err
	}

	cfg := *l.cfg
	cfg.ImagesDir = filepath.Join(tmpDir, "images")
	cfg.BrowserReuse = 0

	if input.Concurrency > 0 {
		cfg.Concurrency = input.Concurrency
	}

	if input.Retries > 0 {
		cfg.Retries = input.Retries
	}

	store := assets.Store(assets.NewFileStore(cfg.ImagesDir))
	if input.BucketName != "" {
		store = runner.MirrorToS3(store, l.uploader, input.BucketName, input.Prefix, l.log)
	}

	pipeline, err := runner.NewPipeline(&cfg, store, l.log)
	if err != nil {
		return lOutput{}, err
	}
	defer pipeline.Close()

	hctx, cancel := context.WithTimeout(ctx, invocationLimit)
	defer cancel()

	rec := &recorder{h: pipeline.Harvester}

	var report bytes.Buffer

	err = filerunner.Harvest(hctx, rec, targets, csvwriter.NewCsvWriter(csv.NewWriter(&report)), exiter.New(exiter.WithLogger(l.log)))
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return lOutput{}, err
	}

	ans := lOutput{
		JobID: input.JobID,
		Part:  input.Part,
		Pages: rec.pages,
	}

	if input.BucketName != "" && input.JobID != "" {
		ans.ReportKey = path.Join(input.Prefix, fmt.Sprintf("%s-%d.csv", input.JobID, input.Part))

		if err := l.uploader.Upload(ctx, input.BucketName, ans.ReportKey, &report, "text/csv; charset=utf-8"); err != nil {
			return ans, err
		}
	}

	l.log.Info("lambda invocation finished",
		zap.String("job_id", input.JobID),
		zap.Int("part", input.Part),
		zap.Int("pages", len(ans.Pages)),
	)

	return ans, nil
}

// recorder keeps a summary of every harvested page for the invocation answer.
type recorder struct {
	h     filerunner.PageHarvester
	pages []lPage
}

func (r *recorder) Harvest(ctx context.Context, target entities.TargetPage) *harvester.PageResult {
	res := r.h.Harvest(ctx, target)
	r.pages = append(r.pages, summarize(res))

	return res
}

func summarize(res *harvester.PageResult) lPage {
	ans := lPage{
		EntityID:     res.EntityID,
		OK:           res.OK(),
		NoGallery:    res.NoGallery,
		ImagesFound:  res.ImagesFound,
		ImagesSaved:  res.ImagesSaved,
		ImagesFailed: res.ImagesFailed,
	}

	if res.RenderError != nil {
		ans.Error = res.RenderError.Error()
	}

	for _, it := range res.Items {
		if it.Saved() {
			ans.Keys = append(ans.Keys, it.Asset.Key)
		}
	}

	return ans
}

// ambientUploader uses the credentials of the function's execution role.
func ambientUploader() (runner.S3Uploader, error) {
	awscfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3uploader.NewFromConfig(awscfg), nil
}

func setupBrowsersAndDriver(browsersDst, driverDst string) error {
	if err := copyDir("/opt/browsers", browsersDst); err != nil {
		return fmt.Errorf("copy browsers: %w", err)
	}

	if err := copyDir("/opt/ms-playwright-go", driverDst); err != nil {
		return fmt.Errorf("copy driver: %w", err)
	}

	return nil
}

func copyDir(src, dst string) error {
	cmd := exec.Command("cp", "-rf", src, dst)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("cp %s: %w: %s", src, err, output)
	}

	return nil
}
