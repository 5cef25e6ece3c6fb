package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"lex-bot-deploy/internal/domain"
	"lex-bot-deploy/internal/schema"
)

type mockGranter struct {
	errs    map[string]error
	granted []domain.EndpointPermission
}

func (m *mockGranter) AddPermission(_ context.Context, p domain.EndpointPermission) error {
	m.granted = append(m.granted, p)
	return m.errs[p.FunctionName]
}

type mockAccounts struct {
	account string
	err     error
}

func (m *mockAccounts) AccountID(context.Context) (string, error) {
	return m.account, m.err
}

func newReconciler(t *testing.T, g *mockGranter, a *mockAccounts) *PermissionReconciler {
	t.Helper()
	r, err := NewPermissionReconciler(g, a, "us-east-1", discardLogger())
	require.NoError(t, err)
	return r
}

func TestCollectEndpoints_Examples(t *testing.T) {
	cases := map[string][]string{
		"ScheduleAppointment": {"arn:aws:lambda:us-east-1:123456789012:function:MakeAppointmentCodeHook"},
		"BookTrip":            {"arn:aws:lambda:us-east-1:123456789012:function:BookTripCodeHook"},
		"OrderFlowers":        nil,
	}
	for name, want := range cases {
		doc, err := schema.LoadExample(name)
		require.NoError(t, err)
		require.Equal(t, want, CollectEndpoints(doc.Bot), name)
	}
}

func TestCollectEndpoints_UnionOfHooks(t *testing.T) {
	def := domain.BotDefinition{Intents: []domain.Intent{
		{
			Name:                "A",
			FulfillmentActivity: &domain.FulfillmentActivity{Type: "CodeHook", CodeHook: &domain.CodeHook{URI: "arn:f2"}},
			DialogCodeHook:      &domain.CodeHook{URI: "arn:f1"},
		},
		{Name: "B", DialogCodeHook: &domain.CodeHook{URI: "arn:f1"}},
		{Name: "C", FulfillmentActivity: &domain.FulfillmentActivity{Type: "ReturnIntent"}},
		{Name: "D", FulfillmentActivity: &domain.FulfillmentActivity{Type: "CodeHook", CodeHook: &domain.CodeHook{URI: "arn:f3"}}},
	}}
	require.Equal(t, []string{"arn:f1", "arn:f2", "arn:f3"}, CollectEndpoints(def))
}

func TestGrant_ToleratesExistingAndFailingEndpoints(t *testing.T) {
	g := &mockGranter{errs: map[string]error{
		"arn:a": fmt.Errorf("permissions: AddPermission arn:a: %w", domain.ErrPermissionExists),
		"arn:b": errors.New("AccessDeniedException"),
	}}
	r := newReconciler(t, g, &mockAccounts{account: "123456789012"})

	report := r.Grant(context.Background(), []string{"arn:a", "arn:b", "arn:c"}, "ScheduleAppointment")
	require.Equal(t, []string{"arn:a"}, report.Existing)
	require.Equal(t, []string{"arn:b"}, report.Failed)
	require.Equal(t, []string{"arn:c"}, report.Granted)
	require.False(t, report.Skipped)

	require.Len(t, g.granted, 3)
	for _, p := range g.granted {
		require.Equal(t, "ScheduleAppointment-intents", p.StatementID)
		require.Equal(t, "lambda:invokeFunction", p.Action)
		require.Equal(t, "lex.amazonaws.com", p.Principal)
		require.Equal(t, "arn:aws:lex:us-east-1:123456789012:intent:*", p.SourceARN)
	}
}

func TestGrant_AccountLookupFailsOpen(t *testing.T) {
	g := &mockGranter{}
	r := newReconciler(t, g, &mockAccounts{err: errors.New("no credentials")})

	report := r.Grant(context.Background(), []string{"arn:a"}, "Bot")
	require.True(t, report.Skipped)
	require.Empty(t, g.granted)
}

func TestGrant_NoEndpoints(t *testing.T) {
	a := &mockAccounts{err: errors.New("must not be called")}
	r := newReconciler(t, &mockGranter{}, a)
	require.Equal(t, GrantReport{}, r.Grant(context.Background(), nil, "Bot"))
}

func TestNewPermissionReconciler_Validation(t *testing.T) {
	_, err := NewPermissionReconciler(nil, &mockAccounts{}, "us-east-1", nil)
	require.Error(t, err)
	_, err = NewPermissionReconciler(&mockGranter{}, nil, "us-east-1", nil)
	require.Error(t, err)
	_, err = NewPermissionReconciler(&mockGranter{}, &mockAccounts{}, " ", nil)
	require.Error(t, err)
}

func TestSourceARN_Partitions(t *testing.T) {
	require.Equal(t, "arn:aws:lex:eu-west-1:1:intent:*", SourceARN("eu-west-1", "1"))
	require.Equal(t, "arn:aws-cn:lex:cn-north-1:1:intent:*", SourceARN("cn-north-1", "1"))
	require.Equal(t, "arn:aws-us-gov:lex:us-gov-west-1:1:intent:*", SourceARN("us-gov-west-1", "1"))
}
