package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSESAPI struct {
	sendFn func(ctx context.Context, params *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error)
}

func (f *fakeSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return f.sendFn(ctx, params)
}

func TestSESClientSendEmail(t *testing.T) {
	t.Parallel()

	var got *sesv2.SendEmailInput
	api := &fakeSESAPI{
		sendFn: func(_ context.Context, params *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
			got = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("ses-message-1")}, nil
		},
	}

	client, err := newSESClientWithAPI("ses", api)
	if err != nil {
		t.Fatalf("newSESClientWithAPI() error = %v", err)
	}

	replyTo := "help@service.gov"
	reference, err := client.SendEmail(context.Background(), EmailMessage{
		From:    "\"Service\" <service@notify.example>",
		To:      "citizen@example.com",
		Subject: "Your licence",
		Body:    "It has been renewed.",
		ReplyTo: &replyTo,
	})
	if err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}
	if reference != "ses-message-1" {
		t.Fatalf("reference = %q, want ses-message-1", reference)
	}

	if aws.ToString(got.FromEmailAddress) != "\"Service\" <service@notify.example>" {
		t.Fatalf("from = %q", aws.ToString(got.FromEmailAddress))
	}
	if len(got.Destination.ToAddresses) != 1 || got.Destination.ToAddresses[0] != "citizen@example.com" {
		t.Fatalf("to = %v", got.Destination.ToAddresses)
	}
	if len(got.ReplyToAddresses) != 1 || got.ReplyToAddresses[0] != replyTo {
		t.Fatalf("reply-to = %v", got.ReplyToAddresses)
	}
	if aws.ToString(got.Content.Simple.Subject.Data) != "Your licence" {
		t.Fatalf("subject = %q", aws.ToString(got.Content.Simple.Subject.Data))
	}
	if aws.ToString(got.Content.Simple.Body.Text.Data) != "It has been renewed." {
		t.Fatalf("body = %q", aws.ToString(got.Content.Simple.Body.Text.Data))
	}
}

func TestSESClientSendEmailErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		out           *sesv2.SendEmailOutput
		err           error
		wantTransient bool
	}{
		{name: "network error is transient", err: errors.New("dial tcp: connection refused"), wantTransient: true},
		{name: "cancelled is permanent", err: context.Canceled, wantTransient: false},
		{name: "empty message id is transient", out: &sesv2.SendEmailOutput{}, wantTransient: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := newSESClientWithAPI("ses", &fakeSESAPI{
				sendFn: func(context.Context, *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
					return tt.out, tt.err
				},
			})
			if err != nil {
				t.Fatalf("newSESClientWithAPI() error = %v", err)
			}

			_, err = client.SendEmail(context.Background(), EmailMessage{To: "a@b.c"})
			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if got := IsTransient(err); got != tt.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tt.wantTransient)
			}
		})
	}
}
