package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	lexmodels "github.com/aws/aws-sdk-go-v2/service/lexmodelbuildingservice"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"lex-bot-deploy/handler"
	"lex-bot-deploy/internal/config"
	"lex-bot-deploy/internal/integrations/lex"
	"lex-bot-deploy/internal/integrations/paramstore"
	"lex-bot-deploy/internal/integrations/permissions"
	"lex-bot-deploy/internal/repository"
	"lex-bot-deploy/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	level, err := config.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		slog.Error("invalid LOG_LEVEL", "err", err)
		os.Exit(1)
	}
	log := config.NewLogger(os.Stdout, level, true)
	slog.SetDefault(log)

	region := mustEnv("AWS_REGION")
	historyTable := os.Getenv("DEPLOY_HISTORY_TABLE")
	endpointParam := os.Getenv("LAMBDA_ENDPOINT_PARAM")

	// API Gateway drops proxy integrations after about 29s, while the default
	// CLI poll budget can wait minutes on a build. Polls are capped at 4s here
	// and each run is bounded by DEPLOY_TIMEOUT_SECONDS; a run cut short
	// answers 504 and is safe to repeat. Invoke the function directly, not
	// through API Gateway, for bots that take longer to build.
	deployTimeout := time.Duration(envInt("DEPLOY_TIMEOUT_SECONDS", 28)) * time.Second

	settings := config.Defaults()
	settings.Conflict.MaxAttempts = envInt("CONFLICT_MAX_ATTEMPTS", settings.Conflict.MaxAttempts)
	settings.Poll.MaxAttempts = envInt("POLL_MAX_ATTEMPTS", settings.Poll.MaxAttempts)
	settings.Poll.MaxDelay = time.Duration(envInt("POLL_MAX_DELAY_SECONDS", 4)) * time.Second
	if err := settings.Validate(); err != nil {
		log.Error("invalid retry settings", "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadAWS(ctx, log, region)
	if err != nil {
		log.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	lexClient, err := lex.New(lexmodels.NewFromConfig(cfg))
	if err != nil {
		log.Error("failed to create lex client", "err", err)
		os.Exit(1)
	}
	permClient, err := permissions.New(awslambda.NewFromConfig(cfg), sts.NewFromConfig(cfg))
	if err != nil {
		log.Error("failed to create permissions client", "err", err)
		os.Exit(1)
	}
	reconciler, err := usecase.NewPermissionReconciler(permClient, permClient, cfg.Region, log)
	if err != nil {
		log.Error("failed to create permission reconciler", "err", err)
		os.Exit(1)
	}

	opts := []usecase.DeployOption{usecase.WithAliasDescription(settings.AliasDescription)}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		log.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	opts = append(opts, usecase.WithParamStore(ssmClient))
	if historyTable != "" {
		history, err := repository.New(awsdynamodb.NewFromConfig(cfg), historyTable)
		if err != nil {
			log.Error("failed to create history client", "err", err)
			os.Exit(1)
		}
		opts = append(opts, usecase.WithHistory(history))
	}

	// ---- Handler ----
	deployService, err := usecase.NewDeployService(lexClient, reconciler, settings.Conflict.Policy(), settings.Poll.Policy(), log, opts...)
	if err != nil {
		log.Error("failed to create deploy service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(withEndpointParam(deployService, endpointParam),
		handler.WithLogger(log), handler.WithTimeout(deployTimeout))
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// endpointParamDeployer fills in the configured parameter name when a
// request carries no literal endpoint.
type endpointParamDeployer struct {
	svc   *usecase.DeployService
	param string
}

func withEndpointParam(svc *usecase.DeployService, param string) handler.DeployUseCase {
	if param == "" {
		return svc
	}
	return endpointParamDeployer{svc: svc, param: param}
}

func (d endpointParamDeployer) Deploy(ctx context.Context, in usecase.DeployInput) (usecase.DeployOutput, error) {
	if in.LambdaEndpoint == "" && in.LambdaEndpointParam == "" {
		in.LambdaEndpointParam = d.param
	}
	return d.svc.Deploy(ctx, in)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
