package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"lex-bot-deploy/internal/archive"
	"lex-bot-deploy/internal/domain"
	"lex-bot-deploy/internal/retry"
)

var exportReady = retry.WaitCondition{
	Field:   "exportStatus",
	Pending: []string{domain.ExportInProgress},
	Failed:  []string{domain.ExportFailed},
}

type ExportAPI interface {
	GetExport(ctx context.Context, name, version string) (domain.ExportState, error)
}

type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type ExportInput struct {
	BotName string
	// Version defaults to the service's default export version.
	Version string
	// OutputDir defaults to the working directory.
	OutputDir string
}

type ExportOutput struct {
	BotName string
	Version string
	Files   []string
}

type ExportService struct {
	lex            ExportAPI
	downloader     Downloader
	poll           retry.Policy
	defaultVersion string
	log            *slog.Logger
}

func NewExportService(lex ExportAPI, d Downloader, poll retry.Policy, defaultVersion string, log *slog.Logger) (*ExportService, error) {
	if lex == nil {
		return nil, errors.New("usecase: lex client must not be nil")
	}
	if d == nil {
		return nil, errors.New("usecase: downloader must not be nil")
	}
	if err := poll.Validate(); err != nil {
		return nil, fmt.Errorf("usecase: poll policy: %w", err)
	}
	defaultVersion = strings.TrimSpace(defaultVersion)
	if defaultVersion == "" {
		defaultVersion = "1"
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExportService{lex: lex, downloader: d, poll: poll, defaultVersion: defaultVersion, log: log}, nil
}

// Export waits for a LEX-format export of the bot version, downloads it and
// unpacks every entry under the output directory.
func (s *ExportService) Export(ctx context.Context, in ExportInput) (ExportOutput, error) {
	name := strings.TrimSpace(in.BotName)
	if name == "" {
		return ExportOutput{}, newError(ErrorInvalidInput, "bot_name_required", nil)
	}
	version := strings.TrimSpace(in.Version)
	if version == "" {
		version = s.defaultVersion
	}
	dir := strings.TrimSpace(in.OutputDir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ExportOutput{}, newError(ErrorInternal, "working_dir_error", err)
		}
		dir = wd
	}
	out := ExportOutput{BotName: name, Version: version}
	log := s.log.With(slog.String("bot", name), slog.String("version", version))

	export, err := retry.Poll(ctx, log, s.poll, exportReady, retry.Call{Name: "GetExport", Args: []any{name, version}},
		func(ctx context.Context) (domain.ExportState, error) { return s.lex.GetExport(ctx, name, version) },
		func(e domain.ExportState) string { return e.Status },
		func(e domain.ExportState) string { return e.FailureReason },
	)
	if err != nil {
		log.ErrorContext(ctx, "export failed", slog.Any("err", err))
		return out, classify("export_failed", err)
	}
	if export.URL == "" {
		return out, newError(ErrorUpstream, "export_url_missing", fmt.Errorf("export of %s version %s is %s without a url", name, version, export.Status))
	}

	data, err := s.downloader.Fetch(ctx, export.URL)
	if err != nil {
		log.ErrorContext(ctx, "download failed", slog.Any("err", err))
		return out, newError(ErrorUpstream, "download_error", err)
	}

	files, err := archive.Extract(data, dir)
	if err != nil {
		log.ErrorContext(ctx, "extract failed", slog.Any("err", err))
		return out, newError(ErrorInternal, "extract_error", err)
	}
	for _, f := range files {
		log.InfoContext(ctx, "extracted", slog.String("path", f))
	}
	out.Files = files
	return out, nil
}
