package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"lex-bot-deploy/internal/domain"
	"lex-bot-deploy/internal/retry"
	"lex-bot-deploy/internal/schema"
)

var newUUID = func() string {
	return uuid.NewString()
}

type LexAPI interface {
	StartImport(ctx context.Context, payload []byte) (domain.ImportState, error)
	GetImport(ctx context.Context, importID string) (domain.ImportState, error)
	GetIntent(ctx context.Context, name, version string) (domain.IntentState, error)
	CreateIntentVersion(ctx context.Context, name, checksum string) (string, error)
	GetBot(ctx context.Context, name, versionOrAlias string) (domain.BotState, error)
	PutBot(ctx context.Context, b domain.BotBuild) (domain.BotState, error)
	CreateBotVersion(ctx context.Context, name, checksum string) (string, error)
	GetBotAlias(ctx context.Context, botName, alias string) (domain.AliasState, error)
	PutBotAlias(ctx context.Context, u domain.AliasUpdate) (domain.AliasState, error)
}

type Reconciler interface {
	Grant(ctx context.Context, endpoints []string, botName string) GrantReport
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type HistoryRecorder interface {
	SaveDeployment(ctx context.Context, rec domain.DeploymentRecord) error
}

var (
	importDone = retry.WaitCondition{
		Field:   "importStatus",
		Pending: []string{domain.ImportInProgress},
		Failed:  []string{domain.ImportFailed},
	}
	notBuilding = retry.WaitCondition{
		Field:   "status",
		Pending: []string{domain.StatusBuilding},
	}
	buildDone = retry.WaitCondition{
		Field:   "status",
		Pending: []string{domain.StatusBuilding, domain.StatusNotBuilt, domain.StatusReadyBasicTesting},
		Failed:  []string{domain.StatusFailed},
	}
)

// IsConflict is the retry predicate for mutating model-building calls.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}

type DeployInput struct {
	// Exactly one of SchemaFile, Example and Schema selects the document.
	SchemaFile string
	Example    string
	Schema     []byte
	// FileName names an inline Schema; it becomes the archive entry name and
	// defaults to "<bot name>_Export.json".
	FileName string

	// Alias defaults to $LATEST.
	Alias string

	LambdaEndpoint      string
	LambdaEndpointParam string
}

type DeployOutput struct {
	DeploymentID   string
	BotName        string
	Alias          string
	BotVersion     string
	IntentVersions []domain.IntentVersion
	Replacements   []schema.Replacement
	Permissions    GrantReport
	AliasWritten   bool
	Outcome        string
}

type DeployService struct {
	lex         LexAPI
	permissions Reconciler
	conflict    retry.Policy
	poll        retry.Policy
	log         *slog.Logger

	params           ParamGetter
	history          HistoryRecorder
	aliasDescription string
	now              func() time.Time
}

type DeployOption func(*DeployService)

// WithParamStore enables LambdaEndpointParam lookups.
func WithParamStore(p ParamGetter) DeployOption {
	return func(s *DeployService) {
		s.params = p
	}
}

// WithHistory records every finished deployment.
func WithHistory(h HistoryRecorder) DeployOption {
	return func(s *DeployService) {
		s.history = h
	}
}

func WithAliasDescription(d string) DeployOption {
	return func(s *DeployService) {
		s.aliasDescription = d
	}
}

func WithClock(now func() time.Time) DeployOption {
	return func(s *DeployService) {
		s.now = now
	}
}

// NewDeployService wires the deploy workflow. conflict governs mutating calls
// and gets IsConflict as its predicate; poll governs status waits.
func NewDeployService(lex LexAPI, permissions Reconciler, conflict, poll retry.Policy, log *slog.Logger, opts ...DeployOption) (*DeployService, error) {
	if lex == nil {
		return nil, errors.New("usecase: lex client must not be nil")
	}
	if permissions == nil {
		return nil, errors.New("usecase: permission reconciler must not be nil")
	}
	if err := conflict.Validate(); err != nil {
		return nil, fmt.Errorf("usecase: conflict policy: %w", err)
	}
	if err := poll.Validate(); err != nil {
		return nil, fmt.Errorf("usecase: poll policy: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	conflict.Retryable = IsConflict
	s := &DeployService{
		lex:              lex,
		permissions:      permissions,
		conflict:         conflict,
		poll:             poll,
		log:              log,
		aliasDescription: "latest test",
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Deploy imports the schema, versions every intent, rebuilds and versions the
// bot, then points the alias at the new version. Re-running after any failure
// is safe.
func (s *DeployService) Deploy(ctx context.Context, in DeployInput) (DeployOutput, error) {
	out := DeployOutput{DeploymentID: newUUID()}
	log := s.log.With(slog.String("deployment_id", out.DeploymentID))

	doc, err := s.loadDocument(in)
	if err != nil {
		log.ErrorContext(ctx, "could not load schema", slog.Any("err", err))
		return out, err
	}
	out.BotName = doc.Bot.Name
	out.Alias = strings.TrimSpace(in.Alias)
	if out.Alias == "" {
		out.Alias = domain.LatestVersion
	}
	log = log.With(slog.String("bot", out.BotName), slog.String("alias", out.Alias))

	err = s.run(ctx, log, doc, in, &out)
	if err != nil {
		out.Outcome = domain.DeploymentFailed
		log.ErrorContext(ctx, "deployment failed", slog.Any("err", err))
	} else {
		log.InfoContext(ctx, "deployment finished",
			slog.String("bot_version", out.BotVersion),
			slog.String("outcome", out.Outcome),
		)
	}
	s.record(ctx, log, out, err)
	return out, err
}

func (s *DeployService) loadDocument(in DeployInput) (*schema.Document, error) {
	sources := 0
	for _, set := range []bool{strings.TrimSpace(in.SchemaFile) != "", strings.TrimSpace(in.Example) != "", len(in.Schema) > 0} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return nil, newError(ErrorInvalidInput, "schema_source", errors.New("exactly one of schema file, example or inline schema is required"))
	}

	var (
		doc *schema.Document
		err error
	)
	switch {
	case strings.TrimSpace(in.SchemaFile) != "":
		doc, err = schema.LoadFile(strings.TrimSpace(in.SchemaFile))
	case strings.TrimSpace(in.Example) != "":
		doc, err = schema.LoadExample(strings.TrimSpace(in.Example))
	default:
		doc, err = schema.Parse(in.FileName, in.Schema)
	}
	if err != nil {
		return nil, newError(ErrorInvalidInput, "schema_invalid", err)
	}
	return doc, nil
}

func (s *DeployService) run(ctx context.Context, log *slog.Logger, doc *schema.Document, in DeployInput, out *DeployOutput) error {
	name := doc.Bot.Name

	endpoint, err := s.resolveEndpoint(ctx, in)
	if err != nil {
		return err
	}
	if endpoint != "" {
		out.Replacements, err = doc.ReplaceEndpoints(endpoint)
		if err != nil {
			return newError(ErrorInvalidInput, "endpoint_rewrite_error", err)
		}
		if len(out.Replacements) == 0 {
			log.WarnContext(ctx, "replacement endpoint given but no intent has a code hook", slog.String("endpoint", endpoint))
		}
		for _, r := range out.Replacements {
			log.InfoContext(ctx, "replaced code hook",
				slog.String("intent", r.Intent), slog.String("hook", r.Hook),
				slog.String("from", r.From), slog.String("to", r.To))
		}
	}

	out.Permissions = s.permissions.Grant(ctx, CollectEndpoints(doc.Bot), name)

	payload, err := doc.Package()
	if err != nil {
		return newError(ErrorInternal, "package_error", err)
	}
	imp, err := retry.Do(ctx, log, s.conflict, retry.Call{Name: "StartImport", Args: []any{doc.FileName}},
		func(ctx context.Context) (domain.ImportState, error) {
			return s.lex.StartImport(ctx, payload)
		})
	if err != nil {
		return classify("import_start_error", err)
	}
	log.InfoContext(ctx, "import started", slog.String("import_id", imp.ID))

	_, err = retry.Poll(ctx, log, s.poll, importDone, retry.Call{Name: "GetImport", Args: []any{imp.ID}},
		func(ctx context.Context) (domain.ImportState, error) { return s.lex.GetImport(ctx, imp.ID) },
		func(st domain.ImportState) string { return st.Status },
		func(st domain.ImportState) string { return strings.Join(st.FailureReasons, "; ") },
	)
	if err != nil {
		return classify("import_failed", err)
	}

	out.IntentVersions = make([]domain.IntentVersion, 0, len(doc.Bot.Intents))
	for _, intent := range doc.Bot.Intents {
		version, err := s.versionIntent(ctx, log, intent.Name)
		if err != nil {
			return classify("intent_version_error", err)
		}
		log.InfoContext(ctx, "created intent version", slog.String("intent", intent.Name), slog.String("version", version))
		out.IntentVersions = append(out.IntentVersions, domain.IntentVersion{IntentName: intent.Name, IntentVersion: version})
	}

	head, err := s.waitForBot(ctx, log, name, domain.LatestVersion, notBuilding)
	if err != nil {
		return classify("bot_wait_error", err)
	}

	checksum := head.Checksum
	rereadBot := func(ctx context.Context) error {
		b, err := s.lex.GetBot(ctx, name, domain.LatestVersion)
		checksum = b.Checksum
		return err
	}
	_, err = retry.Do(ctx, log, s.conflict, retry.Call{Name: "PutBot", Args: []any{name, len(out.IntentVersions)}},
		refreshOnRetry(rereadBot, func(ctx context.Context) (domain.BotState, error) {
			return s.lex.PutBot(ctx, domain.BotBuild{Definition: doc.Bot, Intents: out.IntentVersions, Checksum: checksum})
		}))
	if err != nil {
		return classify("put_bot_error", err)
	}

	built, err := s.waitForBot(ctx, log, name, domain.LatestVersion, buildDone)
	if err != nil {
		return classify("bot_build_failed", err)
	}

	checksum = built.Checksum
	out.BotVersion, err = retry.Do(ctx, log, s.conflict, retry.Call{Name: "CreateBotVersion", Args: []any{name}},
		refreshOnRetry(rereadBot, func(ctx context.Context) (string, error) {
			return s.lex.CreateBotVersion(ctx, name, checksum)
		}))
	if err != nil {
		return classify("bot_version_error", err)
	}
	log.InfoContext(ctx, "created bot version", slog.String("bot_version", out.BotVersion))

	return s.publish(ctx, log, name, out)
}

// refreshOnRetry runs refresh before every call of fn but the first. It is
// used to re-read a checksum after a conflict.
func refreshOnRetry[T any](refresh func(ctx context.Context) error, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	first := true
	return func(ctx context.Context) (T, error) {
		if !first {
			if err := refresh(ctx); err != nil {
				var zero T
				return zero, err
			}
		}
		first = false
		return fn(ctx)
	}
}

func (s *DeployService) resolveEndpoint(ctx context.Context, in DeployInput) (string, error) {
	if endpoint := strings.TrimSpace(in.LambdaEndpoint); endpoint != "" {
		return endpoint, nil
	}
	param := strings.TrimSpace(in.LambdaEndpointParam)
	if param == "" {
		return "", nil
	}
	if s.params == nil {
		return "", newError(ErrorInvalidInput, "endpoint_param_unavailable", errors.New("parameter store is not configured"))
	}
	endpoint, err := s.params.GetParameter(ctx, param)
	if err != nil {
		return "", classify("endpoint_param_error", err)
	}
	return endpoint, nil
}

// versionIntent snapshots the intent head. The checksum is read right before
// every create attempt.
func (s *DeployService) versionIntent(ctx context.Context, log *slog.Logger, name string) (string, error) {
	return retry.Do(ctx, log, s.conflict, retry.Call{Name: "CreateIntentVersion", Args: []any{name}},
		func(ctx context.Context) (string, error) {
			intent, err := s.lex.GetIntent(ctx, name, domain.LatestVersion)
			if err != nil {
				return "", err
			}
			return s.lex.CreateIntentVersion(ctx, name, intent.Checksum)
		})
}

func (s *DeployService) waitForBot(ctx context.Context, log *slog.Logger, name, versionOrAlias string, cond retry.WaitCondition) (domain.BotState, error) {
	return retry.Poll(ctx, log, s.poll, cond, retry.Call{Name: "GetBot", Args: []any{name, versionOrAlias}},
		func(ctx context.Context) (domain.BotState, error) { return s.lex.GetBot(ctx, name, versionOrAlias) },
		func(b domain.BotState) string { return b.Status },
		func(b domain.BotState) string { return b.FailureReason },
	)
}

// publish points the alias at out.BotVersion. $LATEST has no alias object,
// so the head is only checked for a finished build.
func (s *DeployService) publish(ctx context.Context, log *slog.Logger, name string, out *DeployOutput) error {
	if out.Alias == domain.LatestVersion {
		if _, err := s.waitForBot(ctx, log, name, domain.LatestVersion, buildDone); err != nil {
			return classify("alias_wait_error", err)
		}
		out.Outcome = domain.DeploymentSucceeded
		return nil
	}

	current, err := s.lex.GetBotAlias(ctx, name, out.Alias)
	if errors.Is(err, domain.ErrNotFound) {
		_, err = retry.Do(ctx, log, s.conflict, retry.Call{Name: "PutBotAlias", Args: []any{name, out.Alias, out.BotVersion}},
			func(ctx context.Context) (domain.AliasState, error) {
				return s.lex.PutBotAlias(ctx, domain.AliasUpdate{
					Name:        out.Alias,
					BotName:     name,
					BotVersion:  out.BotVersion,
					Description: s.aliasDescription,
				})
			})
		if err != nil {
			return classify("alias_create_error", err)
		}
		log.InfoContext(ctx, "created alias", slog.String("bot_version", out.BotVersion))
		out.AliasWritten = true
		out.Outcome = domain.DeploymentSucceeded
		return nil
	}
	if err != nil {
		return classify("get_alias_error", err)
	}

	if current.BotVersion == out.BotVersion {
		log.InfoContext(ctx, "alias already points at this version, nothing to do", slog.String("bot_version", out.BotVersion))
		out.Outcome = domain.DeploymentUnchanged
		return nil
	}

	previous := current.BotVersion
	checksum := current.Checksum
	_, err = retry.Do(ctx, log, s.conflict, retry.Call{Name: "PutBotAlias", Args: []any{name, out.Alias, out.BotVersion}},
		refreshOnRetry(func(ctx context.Context) error {
			a, err := s.lex.GetBotAlias(ctx, name, out.Alias)
			checksum = a.Checksum
			return err
		}, func(ctx context.Context) (domain.AliasState, error) {
			return s.lex.PutBotAlias(ctx, domain.AliasUpdate{
				Name:        out.Alias,
				BotName:     name,
				BotVersion:  out.BotVersion,
				Description: s.aliasDescription,
				Checksum:    checksum,
			})
		}))
	if err != nil {
		return classify("alias_update_error", err)
	}
	out.AliasWritten = true
	log.InfoContext(ctx, "moved alias", slog.String("from", previous), slog.String("to", out.BotVersion))

	leftPrevious := retry.WaitCondition{Field: "version", Pending: []string{previous}}
	_, err = retry.Poll(ctx, log, s.poll, leftPrevious, retry.Call{Name: "GetBot", Args: []any{name, out.Alias}},
		func(ctx context.Context) (domain.BotState, error) { return s.lex.GetBot(ctx, name, out.Alias) },
		func(b domain.BotState) string { return b.Version },
		nil,
	)
	if err != nil {
		return classify("alias_wait_error", err)
	}
	if _, err := s.waitForBot(ctx, log, name, out.Alias, buildDone); err != nil {
		return classify("alias_wait_error", err)
	}
	out.Outcome = domain.DeploymentSucceeded
	return nil
}

// record stores the outcome. History is best effort.
func (s *DeployService) record(ctx context.Context, log *slog.Logger, out DeployOutput, runErr error) {
	if s.history == nil || out.BotName == "" {
		return
	}
	rec := domain.DeploymentRecord{
		DeploymentID:   out.DeploymentID,
		BotName:        out.BotName,
		Alias:          out.Alias,
		BotVersion:     out.BotVersion,
		Outcome:        out.Outcome,
		IntentVersions: out.IntentVersions,
		FinishedAt:     s.now().UTC(),
	}
	if runErr != nil {
		rec.ErrorCode = string(CodeOf(runErr))
	}
	if err := s.history.SaveDeployment(ctx, rec); err != nil {
		log.WarnContext(ctx, "could not record deployment history", slog.Any("err", err))
	}
}
