package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

const emailCharset = "UTF-8"

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds the settings needed to reach SES.
type SESConfig struct {
	Name            string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
}

// SESClient sends email through Amazon SES v2.
type SESClient struct {
	name string
	api  sesAPI
}

func NewSESClient(ctx context.Context, cfg SESConfig) (*SESClient, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := sesv2.NewFromConfig(awsConfig, func(o *sesv2.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	return newSESClientWithAPI(cfg.Name, api)
}

func newSESClientWithAPI(name string, api sesAPI) (*SESClient, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("email provider name is required")
	}
	if api == nil {
		return nil, fmt.Errorf("ses api is required")
	}
	return &SESClient{name: name, api: api}, nil
}

func (c *SESClient) Name() string { return c.name }

func (c *SESClient) SendEmail(ctx context.Context, msg EmailMessage) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(emailCharset)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String(emailCharset)},
				},
			},
		},
	}
	if msg.ReplyTo != nil && *msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{*msg.ReplyTo}
	}

	out, err := c.api.SendEmail(ctx, input)
	if err != nil {
		return "", classifySESError(c.name, err)
	}

	messageID := aws.ToString(out.MessageId)
	if messageID == "" {
		return "", &ProviderError{Provider: c.name, Message: "empty message id", Transient: true}
	}
	return messageID, nil
}

func classifySESError(name string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return statusError(name, respErr.HTTPStatusCode(), "send email failed", err)
	}
	return requestError(name, "send email request failed", err)
}
