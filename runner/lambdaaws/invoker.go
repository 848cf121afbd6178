package lambdaaws

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/runner"
)

var _ runner.Runner = (*invoker)(nil)

type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

type invoker struct {
	lclient      lambdaInvoker
	functionName string
	payloads     []lInput
	log          *zap.Logger
}

func NewInvoker(cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeAwsLambdaInvoker {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AwsRegion),
	}

	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}

	awscfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	targets, err := runner.ReadTargetsFile(cfg.InputFile, logger)
	if err != nil {
		return nil, err
	}

	payloads := chunkPayloads(cfg, uuid.NewString(), targets)
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%w: no targets in %s", runner.ErrInvalidInput, cfg.InputFile)
	}

	ans := invoker{
		lclient:      lambda.NewFromConfig(awscfg),
		functionName: cfg.FunctionName,
		payloads:     payloads,
		log:          logger,
	}

	return &ans, nil
}

func (i *invoker) Run(ctx context.Context) error {
	for j := range i.payloads {
		if err := i.invoke(ctx, &i.payloads[j]); err != nil {
			return err
		}
	}

	return nil
}

func (i *invoker) invoke(ctx context.Context, input *lInput) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}

	result, err := i.lclient.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(i.functionName),
		Payload:        payload,
		InvocationType: types.InvocationTypeEvent,
	})
	if err != nil {
		return fmt.Errorf("invoke %s part %d: %w", i.functionName, input.Part, err)
	}

	i.log.Info("lambda invoked",
		zap.String("function", i.functionName),
		zap.String("job_id", input.JobID),
		zap.Int("part", input.Part),
		zap.Int("targets", len(input.Targets)),
		zap.Int32("status", result.StatusCode),
	)

	return nil
}

func (i *invoker) Close(context.Context) error {
	return nil
}

func chunkPayloads(cfg *runner.Config, jobID string, targets []entities.TargetPage) []lInput {
	var ans []lInput

	for chunk := range slices.Chunk(targets, cfg.AwsLambdaChunkSize) {
		ans = append(ans, lInput{
			JobID:       jobID,
			Part:        len(ans),
			BucketName:  cfg.S3Bucket,
			Prefix:      cfg.S3Prefix,
			Targets:     chunk,
			Concurrency: cfg.Concurrency,
			Retries:     cfg.Retries,
		})
	}

	return ans
}
