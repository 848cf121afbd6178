package runner

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/entities"
)

var ErrInvalidInput = errors.New("invalid input")

// ReadTargets parses a csv whose first row is a header. The entity id is the
// first column and the review page url the last one; columns in between are
// ignored. Rows that do not make a valid target are logged and skipped so one
// bad row does not cost the rest of the batch. Only a malformed csv fails.
func ReadTargets(r io.Reader, logger *zap.Logger) ([]entities.TargetPage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var targets []entities.TargetPage

	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}

		if line == 1 || isBlank(record) {
			continue
		}

		if len(record) < 2 {
			logger.Warn("skipping input row", zap.Int("line", line), zap.String("reason", "single column"))

			continue
		}

		target := entities.TargetPage{
			EntityID:  strings.TrimSpace(record[0]),
			SourceURL: strings.TrimSpace(record[len(record)-1]),
		}

		if err := target.Validate(); err != nil {
			logger.Warn("skipping input row", zap.Int("line", line), zap.Error(err))

			continue
		}

		targets = append(targets, target)
	}

	return targets, nil
}

// ReadTargetsFile reads targets from path, or from standard input when path
// is "stdin".
func ReadTargetsFile(path string, logger *zap.Logger) ([]entities.TargetPage, error) {
	if path == "stdin" {
		return ReadTargets(os.Stdin, logger)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadTargets(f, logger)
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}

	return true
}
