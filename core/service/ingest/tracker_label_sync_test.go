package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"tracker_server/core/port/out"
	"tracker_server/core/service/auth"
)

func TestLabelSyncCreatesMissingLabel(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{
		labels: []out.ProviderMailLabel{
			{ExternalID: "INBOX", Name: "INBOX", Type: "system"},
		},
	}
	tokens := auth.NewTokenService(&fakeCredRepo{cred: validCred(userID)}, provider)
	svc := NewLabelSyncService(tokens, provider)

	job := &out.LabelSyncJob{
		UserID:     userID,
		ProviderID: "m1",
		LabelName:  "Job Tracker/Processed",
	}
	if err := svc.Apply(context.Background(), job); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if provider.createdName != "Job Tracker/Processed" {
		t.Errorf("created label = %q, want Job Tracker/Processed", provider.createdName)
	}
	if len(provider.added) != 1 || provider.added[0] != "m1/Label_99" {
		t.Errorf("added = %v, want [m1/Label_99]", provider.added)
	}
	if len(provider.markedRead) != 0 {
		t.Errorf("markedRead = %v, want none without MarkRead", provider.markedRead)
	}
}

func TestLabelSyncReusesExistingLabel(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{
		labels: []out.ProviderMailLabel{
			{ExternalID: "Label_7", Name: "Job Tracker/Processed", Type: "user"},
		},
	}
	tokens := auth.NewTokenService(&fakeCredRepo{cred: validCred(userID)}, provider)
	svc := NewLabelSyncService(tokens, provider)

	for _, id := range []string{"m1", "m2"} {
		job := &out.LabelSyncJob{UserID: userID, ProviderID: id, LabelName: "Job Tracker/Processed", MarkRead: true}
		if err := svc.Apply(context.Background(), job); err != nil {
			t.Fatalf("Apply(%s) error = %v", id, err)
		}
	}

	if provider.createdName != "" {
		t.Errorf("label created = %q, want reuse of existing", provider.createdName)
	}
	if provider.listCalls != 1 {
		t.Errorf("ListLabels calls = %d, want 1 (cached after first job)", provider.listCalls)
	}
	if len(provider.added) != 2 {
		t.Errorf("added = %v, want two label applications", provider.added)
	}
	if len(provider.markedRead) != 2 {
		t.Errorf("markedRead = %v, want both messages", provider.markedRead)
	}
}

func TestLabelSyncRetryableListFailureRequeues(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{
		labelsErr: out.NewProviderError("gmail", out.ProviderErrRateLimit, "rate limited", nil, true),
	}
	tokens := auth.NewTokenService(&fakeCredRepo{cred: validCred(userID)}, provider)
	svc := NewLabelSyncService(tokens, provider)

	job := &out.LabelSyncJob{UserID: userID, ProviderID: "m1", LabelName: "Job Tracker/Processed"}
	if err := svc.Apply(context.Background(), job); err == nil {
		t.Fatal("Apply() error = nil, want retryable error for redelivery")
	}
}

func TestLabelSyncMissingCredentialIsSwallowed(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{}
	tokens := auth.NewTokenService(&fakeCredRepo{}, provider)
	svc := NewLabelSyncService(tokens, provider)

	job := &out.LabelSyncJob{UserID: userID, ProviderID: "m1", LabelName: "Job Tracker/Processed"}
	if err := svc.Apply(context.Background(), job); err != nil {
		t.Fatalf("Apply() error = %v, want nil (job dropped, not redelivered)", err)
	}
	if len(provider.added) != 0 {
		t.Errorf("added = %v, want none", provider.added)
	}
}
