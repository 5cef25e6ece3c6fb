package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"lex-bot-deploy/internal/domain"
)

const (
	skPrefixDeploy = "DEPLOY#"
	skLatest       = "LATEST"
	ttlDuration    = 90 * 24 * time.Hour // 90-day TTL
	defaultLimit   = 10
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// ReadWriter defines the deployment history operations used by the CLI and
// the deploy workflow.
type ReadWriter interface {
	SaveDeployment(ctx context.Context, rec domain.DeploymentRecord) error
	GetLatest(ctx context.Context, botName string) (domain.DeploymentRecord, bool, error)
	ListDeployments(ctx context.Context, botName string, limit int) ([]domain.DeploymentRecord, error)
}

// Client wraps a DynamoDB table holding deployment history.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// botPK returns the partition key for a bot.
func botPK(botName string) string {
	return "BOT#" + botName
}

// deploySK orders records by finish time; the id breaks ties.
func deploySK(ts time.Time, deploymentID string) string {
	return skPrefixDeploy + ts.UTC().Format(time.RFC3339Nano) + "#" + deploymentID
}

func ttlValue(now time.Time) int64 {
	return now.Add(ttlDuration).Unix()
}

// NewDeploymentRecord constructs a record with PK/SK/TTL derived from the
// bot name, deployment id and finish time.
func NewDeploymentRecord(deploymentID, botName, alias string, finishedAt time.Time) domain.DeploymentRecord {
	finishedAt = finishedAt.UTC()
	return domain.DeploymentRecord{
		PK:           botPK(botName),
		SK:           deploySK(finishedAt, deploymentID),
		DeploymentID: deploymentID,
		BotName:      botName,
		Alias:        alias,
		FinishedAt:   finishedAt,
		TTL:          ttlValue(finishedAt),
	}
}

// SaveDeployment writes the record and moves the bot's latest pointer to it
// in one transaction. Missing keys are derived from the bot name, deployment
// id and finish time.
func (c *Client) SaveDeployment(ctx context.Context, rec domain.DeploymentRecord) error {
	if rec.PK == "" || rec.SK == "" {
		if rec.BotName == "" || rec.DeploymentID == "" {
			return errors.New("repository: SaveDeployment: bot name and deployment id are required")
		}
		if rec.FinishedAt.IsZero() {
			rec.FinishedAt = time.Now()
		}
		keyed := NewDeploymentRecord(rec.DeploymentID, rec.BotName, rec.Alias, rec.FinishedAt)
		rec.PK, rec.SK, rec.TTL, rec.FinishedAt = keyed.PK, keyed.SK, keyed.TTL, keyed.FinishedAt
	}
	latest := rec
	latest.SK = skLatest

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                recordItem(rec),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      recordItem(latest),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveDeployment: %w", err)
	}
	return nil
}

// GetLatest returns the most recent deployment of botName. The bool is false
// when the bot has no history.
func (c *Client) GetLatest(ctx context.Context, botName string) (domain.DeploymentRecord, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: botPK(botName)},
			"SK": &types.AttributeValueMemberS{Value: skLatest},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.DeploymentRecord{}, false, fmt.Errorf("repository: GetLatest get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.DeploymentRecord{}, false, nil
	}
	rec, err := itemToRecord(out.Item)
	if err != nil {
		return domain.DeploymentRecord{}, false, fmt.Errorf("repository: GetLatest unmarshal: %w", err)
	}
	return rec, true, nil
}

// ListDeployments returns up to limit records for botName, newest first.
func (c *Client) ListDeployments(ctx context.Context, botName string, limit int) ([]domain.DeploymentRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: botPK(botName)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixDeploy},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListDeployments query: %w", err)
	}

	recs := make([]domain.DeploymentRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToRecord(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListDeployments unmarshal: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func recordItem(rec domain.DeploymentRecord) map[string]types.AttributeValue {
	intents := make([]types.AttributeValue, 0, len(rec.IntentVersions))
	for _, iv := range rec.IntentVersions {
		intents = append(intents, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"name":    &types.AttributeValueMemberS{Value: iv.IntentName},
			"version": &types.AttributeValueMemberS{Value: iv.IntentVersion},
		}})
	}
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: rec.PK},
		"SK":             &types.AttributeValueMemberS{Value: rec.SK},
		"deploymentId":   &types.AttributeValueMemberS{Value: rec.DeploymentID},
		"botName":        &types.AttributeValueMemberS{Value: rec.BotName},
		"alias":          &types.AttributeValueMemberS{Value: rec.Alias},
		"botVersion":     &types.AttributeValueMemberS{Value: rec.BotVersion},
		"outcome":        &types.AttributeValueMemberS{Value: rec.Outcome},
		"errorCode":      &types.AttributeValueMemberS{Value: rec.ErrorCode},
		"intentVersions": &types.AttributeValueMemberL{Value: intents},
		"finishedAt":     &types.AttributeValueMemberS{Value: rec.FinishedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.TTL, 10)},
	}
}

func itemToRecord(item map[string]types.AttributeValue) (domain.DeploymentRecord, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.DeploymentRecord{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.DeploymentRecord{}, err
	}
	id, err := strAttr(item, "deploymentId")
	if err != nil {
		return domain.DeploymentRecord{}, err
	}
	finished, err := strAttr(item, "finishedAt")
	if err != nil {
		return domain.DeploymentRecord{}, err
	}
	finishedAt, err := time.Parse(time.RFC3339Nano, finished)
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("repository: parse attribute %q: %w", "finishedAt", err)
	}
	botName, _ := strAttr(item, "botName")
	alias, _ := strAttr(item, "alias")
	botVersion, _ := strAttr(item, "botVersion")
	outcome, _ := strAttr(item, "outcome")
	errorCode, _ := strAttr(item, "errorCode") // allow empty
	ttl, _ := int64Attr(item, "ttl")

	intents, err := intentVersionsAttr(item, "intentVersions")
	if err != nil {
		return domain.DeploymentRecord{}, err
	}

	return domain.DeploymentRecord{
		PK:             pk,
		SK:             sk,
		DeploymentID:   id,
		BotName:        botName,
		Alias:          alias,
		BotVersion:     botVersion,
		Outcome:        outcome,
		ErrorCode:      errorCode,
		IntentVersions: intents,
		FinishedAt:     finishedAt,
		TTL:            ttl,
	}, nil
}

func intentVersionsAttr(item map[string]types.AttributeValue, key string) ([]domain.IntentVersion, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", key)
	}
	out := make([]domain.IntentVersion, 0, len(list.Value))
	for i, elem := range list.Value {
		m, ok := elem.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: %s[%d] is not a map", key, i)
		}
		name, err := strAttr(m.Value, "name")
		if err != nil {
			return nil, err
		}
		version, err := strAttr(m.Value, "version")
		if err != nil {
			return nil, err
		}
		out = append(out, domain.IntentVersion{IntentName: name, IntentVersion: version})
	}
	return out, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
