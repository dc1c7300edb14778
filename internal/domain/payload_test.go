package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodePayloadVariants(t *testing.T) {
	cases := []struct {
		typ  JobType
		raw  string
		want JobPayload
	}{
		{JobSendEmail, `{"campaign_lead_id":"cl","campaign_id":"c","lead_id":"l","inbox_id":"i","email":"x@y.io"}`,
			SendEmailPayload{CampaignLeadID: "cl", CampaignID: "c", LeadID: "l", InboxID: "i", Email: "x@y.io"}},
		{JobVerifyEmail, `{"lead_id":"l","email":"x@y.io"}`, VerifyEmailPayload{LeadID: "l", Email: "x@y.io"}},
		{JobWarmupEmail, `{"email_account_id":"i","target_email":"seed@y.io"}`,
			WarmupEmailPayload{EmailAccountID: "i", TargetEmail: "seed@y.io"}},
		{JobProcessCampaign, `{"campaign_id":"c"}`, ProcessCampaignPayload{CampaignID: "c"}},
		{JobUpdateAnalytics, `{"workspace_id":"w"}`, UpdateAnalyticsPayload{WorkspaceID: "w"}},
	}
	for _, c := range cases {
		got, err := DecodePayload(c.typ, json.RawMessage(c.raw))
		if err != nil {
			t.Errorf("%s: %v", c.typ, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: got %#v, want %#v", c.typ, got, c.want)
		}
		if got.JobType() != c.typ {
			t.Errorf("%s: JobType() = %s", c.typ, got.JobType())
		}
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	_, err := DecodePayload(JobSendEmail, json.RawMessage(`{"campaign_id":`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("truncated JSON err = %v, want ErrMalformedPayload", err)
	}

	_, err = DecodePayload(JobSendEmail, json.RawMessage(`{"campaign_id":"c"}`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("missing fields err = %v, want ErrMalformedPayload", err)
	}
	if !strings.Contains(err.Error(), "campaign_lead_id, email, inbox_id, lead_id") {
		t.Errorf("missing field list not sorted/complete: %v", err)
	}

	_, err = DecodePayload(JobVerifyEmail, json.RawMessage(`{"lead_id": 42}`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("wrong field type err = %v, want ErrMalformedPayload", err)
	}

	_, err = DecodePayload(JobUpdateAnalytics, json.RawMessage(`{}`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("empty analytics payload err = %v", err)
	}
}

func TestDecodePayloadUnknownType(t *testing.T) {
	_, err := DecodePayload(JobType("ScrapeLinkedIn"), json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnknownJobType) {
		t.Errorf("err = %v, want ErrUnknownJobType", err)
	}
	if JobType("ScrapeLinkedIn").Valid() {
		t.Error("unknown type reported valid")
	}
	if !JobWarmupEmail.Valid() {
		t.Error("known type reported invalid")
	}
}

func TestEncodeDecodeSendEmail(t *testing.T) {
	p := SendEmailPayload{CampaignLeadID: "cl", CampaignID: "c", LeadID: "l", InboxID: "i", Email: "x@y.io"}
	raw, err := EncodePayload(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodePayload(p.JobType(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Errorf("got %#v, want %#v", got, p)
	}
}
