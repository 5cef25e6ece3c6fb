package lex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	lexmodels "github.com/aws/aws-sdk-go-v2/service/lexmodelbuildingservice"
	"github.com/aws/aws-sdk-go-v2/service/lexmodelbuildingservice/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"lex-bot-deploy/internal/domain"
)

// lexAPI is the minimal model-building API required by Client.
// *lexmodelbuildingservice.Client satisfies this interface.
type lexAPI interface {
	StartImport(ctx context.Context, in *lexmodels.StartImportInput, optFns ...func(*lexmodels.Options)) (*lexmodels.StartImportOutput, error)
	GetImport(ctx context.Context, in *lexmodels.GetImportInput, optFns ...func(*lexmodels.Options)) (*lexmodels.GetImportOutput, error)
	GetIntent(ctx context.Context, in *lexmodels.GetIntentInput, optFns ...func(*lexmodels.Options)) (*lexmodels.GetIntentOutput, error)
	CreateIntentVersion(ctx context.Context, in *lexmodels.CreateIntentVersionInput, optFns ...func(*lexmodels.Options)) (*lexmodels.CreateIntentVersionOutput, error)
	GetBot(ctx context.Context, in *lexmodels.GetBotInput, optFns ...func(*lexmodels.Options)) (*lexmodels.GetBotOutput, error)
	PutBot(ctx context.Context, in *lexmodels.PutBotInput, optFns ...func(*lexmodels.Options)) (*lexmodels.PutBotOutput, error)
	CreateBotVersion(ctx context.Context, in *lexmodels.CreateBotVersionInput, optFns ...func(*lexmodels.Options)) (*lexmodels.CreateBotVersionOutput, error)
	GetBotAlias(ctx context.Context, in *lexmodels.GetBotAliasInput, optFns ...func(*lexmodels.Options)) (*lexmodels.GetBotAliasOutput, error)
	PutBotAlias(ctx context.Context, in *lexmodels.PutBotAliasInput, optFns ...func(*lexmodels.Options)) (*lexmodels.PutBotAliasOutput, error)
	GetExport(ctx context.Context, in *lexmodels.GetExportInput, optFns ...func(*lexmodels.Options)) (*lexmodels.GetExportOutput, error)
}

// Client wraps the Lex model-building API and translates its responses and
// errors into domain types.
type Client struct {
	api lexAPI
}

// New creates a Client with the given API implementation.
func New(api lexAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("lex: api must not be nil")
	}
	return &Client{api: api}, nil
}

// StartImport submits a zipped bot schema, overwriting the mutable head.
func (c *Client) StartImport(ctx context.Context, payload []byte) (domain.ImportState, error) {
	if len(payload) == 0 {
		return domain.ImportState{}, errors.New("lex: StartImport: payload is required")
	}
	out, err := c.api.StartImport(ctx, &lexmodels.StartImportInput{
		Payload:       payload,
		ResourceType:  types.ResourceTypeBot,
		MergeStrategy: types.MergeStrategyOverwriteLatest,
	})
	if err != nil {
		return domain.ImportState{}, wrap("StartImport", err)
	}
	if aws.ToString(out.ImportId) == "" {
		return domain.ImportState{}, errors.New("lex: StartImport: response missing import id")
	}
	return domain.ImportState{
		ID:     aws.ToString(out.ImportId),
		Name:   aws.ToString(out.Name),
		Status: string(out.ImportStatus),
	}, nil
}

func (c *Client) GetImport(ctx context.Context, importID string) (domain.ImportState, error) {
	out, err := c.api.GetImport(ctx, &lexmodels.GetImportInput{ImportId: aws.String(importID)})
	if err != nil {
		return domain.ImportState{}, wrap("GetImport", err)
	}
	return domain.ImportState{
		ID:             aws.ToString(out.ImportId),
		Name:           aws.ToString(out.Name),
		Status:         string(out.ImportStatus),
		FailureReasons: out.FailureReason,
	}, nil
}

func (c *Client) GetIntent(ctx context.Context, name, version string) (domain.IntentState, error) {
	out, err := c.api.GetIntent(ctx, &lexmodels.GetIntentInput{
		Name:    aws.String(name),
		Version: aws.String(version),
	})
	if err != nil {
		return domain.IntentState{}, wrap("GetIntent", err)
	}
	return domain.IntentState{
		Name:     aws.ToString(out.Name),
		Version:  aws.ToString(out.Version),
		Checksum: aws.ToString(out.Checksum),
	}, nil
}

// CreateIntentVersion snapshots the intent head identified by checksum and
// returns the new version number.
func (c *Client) CreateIntentVersion(ctx context.Context, name, checksum string) (string, error) {
	out, err := c.api.CreateIntentVersion(ctx, &lexmodels.CreateIntentVersionInput{
		Name:     aws.String(name),
		Checksum: optional(checksum),
	})
	if err != nil {
		return "", wrap("CreateIntentVersion", err)
	}
	return aws.ToString(out.Version), nil
}

func (c *Client) GetBot(ctx context.Context, name, versionOrAlias string) (domain.BotState, error) {
	out, err := c.api.GetBot(ctx, &lexmodels.GetBotInput{
		Name:           aws.String(name),
		VersionOrAlias: aws.String(versionOrAlias),
	})
	if err != nil {
		return domain.BotState{}, wrap("GetBot", err)
	}
	return domain.BotState{
		Name:          aws.ToString(out.Name),
		Version:       aws.ToString(out.Version),
		Status:        string(out.Status),
		Checksum:      aws.ToString(out.Checksum),
		FailureReason: aws.ToString(out.FailureReason),
	}, nil
}

// PutBot rebuilds the mutable head from the bot-level fields of the
// definition and the pinned intent versions.
func (c *Client) PutBot(ctx context.Context, b domain.BotBuild) (domain.BotState, error) {
	def := b.Definition
	intents := make([]types.Intent, 0, len(b.Intents))
	for _, iv := range b.Intents {
		intents = append(intents, types.Intent{
			IntentName:    aws.String(iv.IntentName),
			IntentVersion: aws.String(iv.IntentVersion),
		})
	}
	out, err := c.api.PutBot(ctx, &lexmodels.PutBotInput{
		Name:                    aws.String(def.Name),
		Checksum:                optional(b.Checksum),
		ChildDirected:           aws.Bool(def.ChildDirected),
		Locale:                  types.Locale(def.Locale),
		AbortStatement:          toStatement(def.AbortStatement),
		ClarificationPrompt:     toPrompt(def.ClarificationPrompt),
		Intents:                 intents,
		ProcessBehavior:         types.ProcessBehaviorBuild,
		VoiceId:                 optional(def.VoiceID),
		IdleSessionTTLInSeconds: aws.Int32(def.IdleSessionTTLInSeconds),
	})
	if err != nil {
		return domain.BotState{}, wrap("PutBot", err)
	}
	return domain.BotState{
		Name:          aws.ToString(out.Name),
		Version:       aws.ToString(out.Version),
		Status:        string(out.Status),
		Checksum:      aws.ToString(out.Checksum),
		FailureReason: aws.ToString(out.FailureReason),
	}, nil
}

func (c *Client) CreateBotVersion(ctx context.Context, name, checksum string) (string, error) {
	out, err := c.api.CreateBotVersion(ctx, &lexmodels.CreateBotVersionInput{
		Name:     aws.String(name),
		Checksum: optional(checksum),
	})
	if err != nil {
		return "", wrap("CreateBotVersion", err)
	}
	return aws.ToString(out.Version), nil
}

// GetBotAlias returns an error matching domain.ErrNotFound when the alias
// does not exist.
func (c *Client) GetBotAlias(ctx context.Context, botName, alias string) (domain.AliasState, error) {
	out, err := c.api.GetBotAlias(ctx, &lexmodels.GetBotAliasInput{
		BotName: aws.String(botName),
		Name:    aws.String(alias),
	})
	if err != nil {
		return domain.AliasState{}, wrap("GetBotAlias", err)
	}
	return domain.AliasState{
		Name:       aws.ToString(out.Name),
		BotName:    aws.ToString(out.BotName),
		BotVersion: aws.ToString(out.BotVersion),
		Checksum:   aws.ToString(out.Checksum),
	}, nil
}

// PutBotAlias creates an alias when u.Checksum is empty and repoints an
// existing one otherwise.
func (c *Client) PutBotAlias(ctx context.Context, u domain.AliasUpdate) (domain.AliasState, error) {
	out, err := c.api.PutBotAlias(ctx, &lexmodels.PutBotAliasInput{
		Name:        aws.String(u.Name),
		BotName:     aws.String(u.BotName),
		BotVersion:  aws.String(u.BotVersion),
		Description: optional(u.Description),
		Checksum:    optional(u.Checksum),
	})
	if err != nil {
		return domain.AliasState{}, wrap("PutBotAlias", err)
	}
	return domain.AliasState{
		Name:       aws.ToString(out.Name),
		BotName:    aws.ToString(out.BotName),
		BotVersion: aws.ToString(out.BotVersion),
		Checksum:   aws.ToString(out.Checksum),
	}, nil
}

// GetExport requests (or re-reads) a LEX-format export of a bot version.
func (c *Client) GetExport(ctx context.Context, name, version string) (domain.ExportState, error) {
	out, err := c.api.GetExport(ctx, &lexmodels.GetExportInput{
		Name:         aws.String(name),
		Version:      aws.String(version),
		ResourceType: types.ResourceTypeBot,
		ExportType:   types.ExportTypeLex,
	})
	if err != nil {
		return domain.ExportState{}, wrap("GetExport", err)
	}
	return domain.ExportState{
		Name:          aws.ToString(out.Name),
		Version:       aws.ToString(out.Version),
		Status:        string(out.ExportStatus),
		URL:           aws.ToString(out.Url),
		FailureReason: aws.ToString(out.FailureReason),
	}, nil
}

// wrap prefixes err with the operation and joins the matching domain kind.
func wrap(op string, err error) error {
	var (
		conflict *types.ConflictException
		notFound *types.NotFoundException
		sendErr  *smithyhttp.RequestSendError
	)
	switch {
	case errors.As(err, &conflict):
		return fmt.Errorf("lex: %s: %w: %w", op, domain.ErrConflict, err)
	case errors.As(err, &notFound):
		return fmt.Errorf("lex: %s: %w: %w", op, domain.ErrNotFound, err)
	case errors.As(err, &sendErr):
		return fmt.Errorf("lex: %s: %w: %w", op, domain.ErrEndpointUnreachable, err)
	default:
		return fmt.Errorf("lex: %s: %w", op, err)
	}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return aws.String(s)
}

func toMessages(in []domain.Message) []types.Message {
	out := make([]types.Message, 0, len(in))
	for _, m := range in {
		out = append(out, types.Message{
			ContentType: types.ContentType(m.ContentType),
			Content:     aws.String(m.Content),
			GroupNumber: m.GroupNumber,
		})
	}
	return out
}

func toStatement(s *domain.Statement) *types.Statement {
	if s == nil {
		return nil
	}
	return &types.Statement{
		Messages:     toMessages(s.Messages),
		ResponseCard: optional(s.ResponseCard),
	}
}

func toPrompt(p *domain.Prompt) *types.Prompt {
	if p == nil {
		return nil
	}
	return &types.Prompt{
		Messages:     toMessages(p.Messages),
		MaxAttempts:  aws.Int32(p.MaxAttempts),
		ResponseCard: optional(p.ResponseCard),
	}
}
