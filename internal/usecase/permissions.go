package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	"lex-bot-deploy/internal/domain"
)

const (
	invokeAction   = "lambda:invokeFunction"
	lexPrincipal   = "lex.amazonaws.com"
	intentResource = "intent:*"
)

type PermissionGranter interface {
	AddPermission(ctx context.Context, p domain.EndpointPermission) error
}

type AccountResolver interface {
	AccountID(ctx context.Context) (string, error)
}

// CollectEndpoints returns every fulfillment and dialog hook ARN referenced
// by def, de-duplicated and sorted.
func CollectEndpoints(def domain.BotDefinition) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, intent := range def.Intents {
		for _, uri := range intent.Endpoints() {
			uri = strings.TrimSpace(uri)
			if uri == "" {
				continue
			}
			if _, ok := seen[uri]; ok {
				continue
			}
			seen[uri] = struct{}{}
			out = append(out, uri)
		}
	}
	sort.Strings(out)
	return out
}

// GrantReport lists what happened to each endpoint.
type GrantReport struct {
	Granted  []string
	Existing []string
	Failed   []string
	// Skipped is set when the account could not be resolved.
	Skipped bool
}

// PermissionReconciler lets the Lex service invoke each code hook of a bot.
type PermissionReconciler struct {
	granter  PermissionGranter
	accounts AccountResolver
	region   string
	log      *slog.Logger
}

func NewPermissionReconciler(g PermissionGranter, a AccountResolver, region string, log *slog.Logger) (*PermissionReconciler, error) {
	if g == nil {
		return nil, errors.New("usecase: permission granter must not be nil")
	}
	if a == nil {
		return nil, errors.New("usecase: account resolver must not be nil")
	}
	region = strings.TrimSpace(region)
	if region == "" {
		return nil, errors.New("usecase: region must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PermissionReconciler{granter: g, accounts: a, region: region, log: log}, nil
}

// Grant adds the "{botName}-intents" statement to every endpoint. It never
// fails: an existing statement counts as done, and any other failure is
// logged and leaves the remaining endpoints unaffected.
func (r *PermissionReconciler) Grant(ctx context.Context, endpoints []string, botName string) GrantReport {
	var report GrantReport
	if len(endpoints) == 0 {
		return report
	}

	account, err := r.accounts.AccountID(ctx)
	if err != nil {
		r.log.ErrorContext(ctx, "could not resolve account, skipping code hook permissions",
			slog.String("bot", botName), slog.Any("err", err))
		report.Skipped = true
		return report
	}

	source := SourceARN(r.region, account)
	for _, endpoint := range endpoints {
		p := domain.EndpointPermission{
			FunctionName: endpoint,
			StatementID:  botName + "-intents",
			Action:       invokeAction,
			Principal:    lexPrincipal,
			SourceARN:    source,
		}
		err := r.granter.AddPermission(ctx, p)
		switch {
		case err == nil:
			r.log.InfoContext(ctx, "granted invoke permission", slog.String("function", endpoint), slog.String("statement_id", p.StatementID))
			report.Granted = append(report.Granted, endpoint)
		case errors.Is(err, domain.ErrPermissionExists):
			r.log.DebugContext(ctx, "invoke permission already present", slog.String("function", endpoint), slog.String("statement_id", p.StatementID))
			report.Existing = append(report.Existing, endpoint)
		default:
			r.log.ErrorContext(ctx, "failed to grant invoke permission", slog.String("function", endpoint), slog.Any("err", err))
			report.Failed = append(report.Failed, endpoint)
		}
	}
	return report
}

// SourceARN scopes a grant to every intent of the account in region.
func SourceARN(region, account string) string {
	return arn.ARN{
		Partition: partitionFor(region),
		Service:   "lex",
		Region:    region,
		AccountID: account,
		Resource:  intentResource,
	}.String()
}

func partitionFor(region string) string {
	switch {
	case strings.HasPrefix(region, "cn-"):
		return "aws-cn"
	case strings.HasPrefix(region, "us-gov-"):
		return "aws-us-gov"
	default:
		return "aws"
	}
}
