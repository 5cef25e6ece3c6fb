// Package permissions grants the Lex service permission to invoke Lambda
// code hooks and looks up the caller's account for the grant's source ARN.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"lex-bot-deploy/internal/domain"
)

// duplicateStatement matches the message Lambda returns when the statement
// id is already attached to the function policy.
var duplicateStatement = regexp.MustCompile(`.*The statement id .* provided already exists.*`)

// lambdaAPI is the minimal Lambda interface required by Client.
type lambdaAPI interface {
	AddPermission(ctx context.Context, in *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)
}

// stsAPI is the minimal STS interface required by Client.
type stsAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Client wraps the Lambda permission and STS identity APIs.
type Client struct {
	lambda lambdaAPI
	sts    stsAPI
}

// New creates a Client. Both APIs are required.
func New(l lambdaAPI, s stsAPI) (*Client, error) {
	if l == nil {
		return nil, errors.New("permissions: lambda api must not be nil")
	}
	if s == nil {
		return nil, errors.New("permissions: sts api must not be nil")
	}
	return &Client{lambda: l, sts: s}, nil
}

// AccountID returns the account of the credentials in use.
func (c *Client) AccountID(ctx context.Context) (string, error) {
	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("permissions: GetCallerIdentity: %w", err)
	}
	account := aws.ToString(out.Account)
	if account == "" {
		return "", errors.New("permissions: GetCallerIdentity: response missing account")
	}
	return account, nil
}

// AddPermission attaches p to the function policy. A statement id that is
// already present yields an error matching domain.ErrPermissionExists.
func (c *Client) AddPermission(ctx context.Context, p domain.EndpointPermission) error {
	if strings.TrimSpace(p.FunctionName) == "" {
		return errors.New("permissions: AddPermission: function name is required")
	}
	if strings.TrimSpace(p.StatementID) == "" {
		return errors.New("permissions: AddPermission: statement id is required")
	}
	_, err := c.lambda.AddPermission(ctx, &lambda.AddPermissionInput{
		FunctionName: aws.String(p.FunctionName),
		StatementId:  aws.String(p.StatementID),
		Action:       aws.String(p.Action),
		Principal:    aws.String(p.Principal),
		SourceArn:    aws.String(p.SourceARN),
	})
	if err == nil {
		return nil
	}
	var conflict *lambdatypes.ResourceConflictException
	if errors.As(err, &conflict) && duplicateStatement.MatchString(conflict.ErrorMessage()) {
		return fmt.Errorf("permissions: AddPermission %s: %w: %w", p.FunctionName, domain.ErrPermissionExists, err)
	}
	return fmt.Errorf("permissions: AddPermission %s: %w", p.FunctionName, err)
}
