package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "valid lowercase", input: "delivered", want: StatusDelivered},
		{name: "valid uppercase with spaces", input: " TECHNICAL-FAILURE ", want: StatusTechnicalFailure},
		{name: "invalid", input: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseChannelFromString(" SMS ")
	if err != nil {
		t.Fatalf("ParseChannelFromString() unexpected error = %v", err)
	}
	if got != ChannelSMS {
		t.Fatalf("ParseChannelFromString() = %s, want %s", got, ChannelSMS)
	}

	_, err = ParseChannelFromString("fax")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseChannelFromString() error = %v, want ErrValidation", err)
	}
}

func TestStatusAwaitingUpdate(t *testing.T) {
	t.Parallel()

	awaiting := map[Status]bool{
		StatusCreated:          false,
		StatusSending:          true,
		StatusPending:          true,
		StatusSent:             false,
		StatusDelivered:        false,
		StatusPermanentFailure: false,
		StatusTemporaryFailure: false,
		StatusTechnicalFailure: false,
	}

	for status, want := range awaiting {
		if got := status.AwaitingUpdate(); got != want {
			t.Fatalf("%s.AwaitingUpdate() = %v, want %v", status, got, want)
		}
	}
}

func TestNotificationSimulated(t *testing.T) {
	t.Parallel()

	live := &Service{ID: "s1", Active: true}
	research := &Service{ID: "s1", Active: true, ResearchMode: true}

	if (&Notification{KeyType: KeyTypeNormal}).Simulated(live) {
		t.Fatal("normal key on live service should not be simulated")
	}
	if !(&Notification{KeyType: KeyTypeTest}).Simulated(live) {
		t.Fatal("test key should be simulated")
	}
	if !(&Notification{KeyType: KeyTypeTeam}).Simulated(research) {
		t.Fatal("research mode service should be simulated")
	}
}

func TestNotificationValidate(t *testing.T) {
	t.Parallel()

	base := Notification{
		ID:        "n1",
		ServiceID: "s1",
		Channel:   ChannelSMS,
		To:        "+61412345678",
		Status:    StatusCreated,
		KeyType:   KeyTypeNormal,
	}

	tests := []struct {
		name    string
		mutate  func(*Notification)
		wantErr bool
	}{
		{
			name:   "valid notification",
			mutate: func(n *Notification) {},
		},
		{
			name: "missing recipient",
			mutate: func(n *Notification) {
				n.To = " "
			},
			wantErr: true,
		},
		{
			name: "missing service",
			mutate: func(n *Notification) {
				n.ServiceID = ""
			},
			wantErr: true,
		},
		{
			name: "invalid channel",
			mutate: func(n *Notification) {
				n.Channel = Channel("fax")
			},
			wantErr: true,
		},
		{
			name: "invalid status",
			mutate: func(n *Notification) {
				n.Status = Status("queued")
			},
			wantErr: true,
		},
		{
			name: "invalid key type",
			mutate: func(n *Notification) {
				n.KeyType = KeyType("admin")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestFragmentCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		length int
		want   int
	}{
		{length: 0, want: 1},
		{length: 1, want: 1},
		{length: 160, want: 1},
		{length: 161, want: 2},
		{length: 306, want: 2},
		{length: 307, want: 3},
		{length: 459, want: 3},
		{length: 460, want: 4},
	}

	for _, tt := range tests {
		if got := FragmentCount(tt.length); got != tt.want {
			t.Fatalf("FragmentCount(%d) = %d, want %d", tt.length, got, tt.want)
		}
	}

	if got := SMSFragmentCount(strings.Repeat("a", 161)); got != 2 {
		t.Fatalf("SMSFragmentCount(161 bytes) = %d, want 2", got)
	}
}

func TestEligibleProviders(t *testing.T) {
	t.Parallel()

	details := []ProviderDetail{
		{Identifier: "mmg", Channel: ChannelSMS, Active: true, Priority: 20},
		{Identifier: "firetext", Channel: ChannelSMS, Active: true, Priority: 10},
		{Identifier: "twilio", Channel: ChannelSMS, Active: true, Priority: 30, SupportsInternational: true},
		{Identifier: "sap", Channel: ChannelSMS, Active: false, Priority: 1, SupportsInternational: true},
		{Identifier: "ses", Channel: ChannelEmail, Active: true, Priority: 1},
	}

	domestic := EligibleProviders(details, ChannelSMS, false)
	if got := identifiers(domestic); got != "firetext,mmg,twilio" {
		t.Fatalf("domestic order = %s, want firetext,mmg,twilio", got)
	}

	international := EligibleProviders(details, ChannelSMS, true)
	if got := identifiers(international); got != "twilio" {
		t.Fatalf("international order = %s, want twilio", got)
	}

	email := EligibleProviders(details, ChannelEmail, true)
	if got := identifiers(email); got != "ses" {
		t.Fatalf("email order = %s, want ses", got)
	}

	if got := EligibleProviders(nil, ChannelSMS, false); len(got) != 0 {
		t.Fatalf("empty input returned %d providers", len(got))
	}
}

func TestCallbackFailureStatsFailing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stats CallbackFailureStats
		want  bool
	}{
		{stats: CallbackFailureStats{TotalFailureCount: 1000, FailedNotificationCount: 49}, want: false},
		{stats: CallbackFailureStats{TotalFailureCount: 500, FailedNotificationCount: 50}, want: false},
		{stats: CallbackFailureStats{TotalFailureCount: 501, FailedNotificationCount: 50}, want: true},
	}

	for _, tt := range tests {
		if got := tt.stats.Failing(); got != tt.want {
			t.Fatalf("Failing(%+v) = %v, want %v", tt.stats, got, tt.want)
		}
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	if !IsFatal(fmt.Errorf("dispatch: %w", ErrServiceInactive)) {
		t.Fatal("wrapped ErrServiceInactive should be fatal")
	}
	if !IsFatal(ErrNoActiveProvider) {
		t.Fatal("ErrNoActiveProvider should be fatal")
	}
	if IsFatal(errors.New("connection reset")) {
		t.Fatal("unclassified errors should be retryable")
	}
	if IsFatal(nil) {
		t.Fatal("nil should not be fatal")
	}
}

func identifiers(details []ProviderDetail) string {
	ids := make([]string, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.Identifier)
	}
	return strings.Join(ids, ",")
}
