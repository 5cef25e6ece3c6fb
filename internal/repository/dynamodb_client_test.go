package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"lex-bot-deploy/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	queryOut     *dynamodb.QueryOutput
	queryErr     error
	txErr        error
	lastGetInput *dynamodb.GetItemInput
	lastQueryIn  *dynamodb.QueryInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "lex-deployments")
	require.NoError(t, err)
	return c
}

var finished = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

func sampleRecord() domain.DeploymentRecord {
	rec := NewDeploymentRecord("dep-1", "ScheduleAppointment", "prod", finished)
	rec.BotVersion = "4"
	rec.Outcome = domain.DeploymentSucceeded
	rec.IntentVersions = []domain.IntentVersion{{IntentName: "MakeAppointment", IntentVersion: "7"}}
	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.ErrorContains(t, err, "must not be nil")
	_, err = New(&fakeDynamo{}, " ")
	require.ErrorContains(t, err, "must not be empty")
}

func TestNewDeploymentRecord_Keys(t *testing.T) {
	rec := sampleRecord()
	require.Equal(t, "BOT#ScheduleAppointment", rec.PK)
	require.Equal(t, "DEPLOY#2026-03-04T10:30:00Z#dep-1", rec.SK)
	require.Equal(t, finished.Add(ttlDuration).Unix(), rec.TTL)
}

func TestSaveDeployment_WritesRecordAndLatest(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.SaveDeployment(context.Background(), sampleRecord()))

	items := db.lastTxInput.TransactItems
	require.Len(t, items, 2)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *items[0].Put.ConditionExpression)
	require.Equal(t, "DEPLOY#2026-03-04T10:30:00Z#dep-1", items[0].Put.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skLatest, items[1].Put.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.Nil(t, items[1].Put.ConditionExpression)
	require.Equal(t, "4", items[1].Put.Item["botVersion"].(*types.AttributeValueMemberS).Value)
}

func TestSaveDeployment_DerivesMissingKeys(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.SaveDeployment(context.Background(), domain.DeploymentRecord{
		DeploymentID: "dep-9",
		BotName:      "OrderFlowers",
		Alias:        "$LATEST",
		Outcome:      domain.DeploymentSucceeded,
		FinishedAt:   finished,
	})
	require.NoError(t, err)
	item := db.lastTxInput.TransactItems[0].Put.Item
	require.Equal(t, "BOT#OrderFlowers", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "DEPLOY#2026-03-04T10:30:00Z#dep-9", item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "1780396200", item["ttl"].(*types.AttributeValueMemberN).Value)
}

func TestSaveDeployment_MissingIdentity(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	err := c.SaveDeployment(context.Background(), domain.DeploymentRecord{PK: "BOT#x"})
	require.ErrorContains(t, err, "required")
}

func TestSaveDeployment_DynamoError(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("TransactionCanceledException")}
	c := mustNewClient(t, db)
	err := c.SaveDeployment(context.Background(), sampleRecord())
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveDeployment")
}

func TestGetLatest_RoundTripsItem(t *testing.T) {
	rec := sampleRecord()
	item := recordItem(rec)
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}}
	c := mustNewClient(t, db)

	got, ok, err := c.GetLatest(context.Background(), "ScheduleAppointment")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, skLatest, db.lastGetInput.Key["SK"].(*types.AttributeValueMemberS).Value)
}

func TestGetLatest_NoHistory(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	_, ok, err := c.GetLatest(context.Background(), "ScheduleAppointment")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetLatest_GetItemError(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getErr: errors.New("boom")})
	_, _, err := c.GetLatest(context.Background(), "ScheduleAppointment")
	require.ErrorContains(t, err, "GetLatest")
}

func TestListDeployments_NewestFirst(t *testing.T) {
	older := sampleRecord()
	newer := NewDeploymentRecord("dep-2", "ScheduleAppointment", "prod", finished.Add(time.Hour))
	newer.Outcome = domain.DeploymentFailed
	newer.ErrorCode = "REMOTE_FAILED"
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		recordItem(newer), recordItem(older),
	}}}
	c := mustNewClient(t, db)

	recs, err := c.ListDeployments(context.Background(), "ScheduleAppointment", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "dep-2", recs[0].DeploymentID)
	require.Equal(t, "REMOTE_FAILED", recs[0].ErrorCode)
	require.Empty(t, recs[0].IntentVersions)
	require.Equal(t, "7", recs[1].IntentVersions[0].IntentVersion)

	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *db.lastQueryIn.KeyConditionExpression)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(defaultLimit), *db.lastQueryIn.Limit)
}

func TestListDeployments_MalformedItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "BOT#x"},
		"SK": &types.AttributeValueMemberS{Value: "DEPLOY#ts"},
	}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	c := mustNewClient(t, db)
	_, err := c.ListDeployments(context.Background(), "x", 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "deploymentId")
}

func TestListDeployments_QueryError(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")})
	_, err := c.ListDeployments(context.Background(), "x", 5)
	require.ErrorContains(t, err, "ListDeployments")
}
