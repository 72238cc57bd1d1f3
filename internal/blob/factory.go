package blob

import (
	"fmt"
	"strings"

	appcfg "github.com/fdg312/meal-tracker/internal/config"
)

// Logger is satisfied by *log.Logger, including zap.NewStdLog.
type Logger interface {
	Printf(format string, v ...any)
}

// NewBlobStore builds the store for one purpose ("exports", "imports") using mode local|s3|auto.
// Local mode returns a nil Store: exports stay inline in the database and uploads are not archived.
func NewBlobStore(purpose, mode string, s3cfg appcfg.S3Config, logger Logger) (Store, string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = appcfg.BlobModeLocal
	}

	switch mode {
	case appcfg.BlobModeLocal:
		logf(logger, "INFO blob[%s]: mode=local (forced)", purpose)
		return nil, appcfg.BlobModeLocal, nil

	case appcfg.BlobModeAuto:
		if !s3cfg.IsConfigured() {
			level, code, msg := s3cfg.Diagnostics()
			logf(logger, "%s blob[%s].s3: code=%s %s", level, purpose, code, msg)
			logf(logger, "INFO blob[%s].s3: %s", purpose, s3cfg.DiagnosticsSummary())
			logf(logger, "INFO blob[%s]: mode=local (auto, S3 not configured)", purpose)
			return nil, appcfg.BlobModeLocal, nil
		}

		logf(logger, "INFO blob[%s].s3: code=s3_ready %s", purpose, s3cfg.DiagnosticsSummary())
		store, err := NewS3Store(s3cfg.Endpoint, s3cfg.Region, s3cfg.Bucket, s3cfg.AccessKeyID, s3cfg.SecretAccessKey)
		if err != nil {
			logf(logger, "WARN blob[%s].s3: init_failed=%q, fallback=local", purpose, err.Error())
			return nil, appcfg.BlobModeLocal, nil
		}

		logf(logger, "INFO blob[%s]: mode=s3 (auto, configured)", purpose)
		return store, appcfg.BlobModeS3, nil

	case appcfg.BlobModeS3:
		if !s3cfg.IsConfigured() {
			missing := s3cfg.MissingRequired()
			logf(logger, "FATAL blob[%s].s3: code=s3_config_incomplete missing=%v", purpose, missing)
			logf(logger, "FATAL blob[%s].s3: %s", purpose, s3cfg.DiagnosticsSummary())
			return nil, "", fmt.Errorf("%s: BLOB_MODE=s3 requested but missing required config: %s", purpose, strings.Join(missing, ", "))
		}

		logf(logger, "INFO blob[%s].s3: code=s3_ready %s", purpose, s3cfg.DiagnosticsSummary())
		store, err := NewS3Store(s3cfg.Endpoint, s3cfg.Region, s3cfg.Bucket, s3cfg.AccessKeyID, s3cfg.SecretAccessKey)
		if err != nil {
			logf(logger, "FATAL blob[%s].s3: init_failed=%v", purpose, err)
			return nil, "", fmt.Errorf("%s: BLOB_MODE=s3 init failed: %w", purpose, err)
		}

		logf(logger, "INFO blob[%s]: mode=s3 (forced)", purpose)
		return store, appcfg.BlobModeS3, nil

	default:
		return nil, "", fmt.Errorf("unsupported blob mode: %s", mode)
	}
}

func logf(logger Logger, format string, v ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, v...)
}
