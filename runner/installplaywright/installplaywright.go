package installplaywright

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/runner"
)

type installer struct {
	verbose bool
	log     *zap.Logger
}

// New returns a runner that downloads the playwright driver and chromium.
func New(cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeInstallPlaywright {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &installer{verbose: cfg.Debug, log: logger}, nil
}

func (i *installer) Run(context.Context) error {
	i.log.Info("installing playwright driver and chromium")

	err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  i.verbose,
	})
	if err != nil {
		return fmt.Errorf("install playwright: %w", err)
	}

	return nil
}

func (i *installer) Close(context.Context) error {
	return nil
}
