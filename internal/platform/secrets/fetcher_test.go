package secrets

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

type fakeSecretClient struct {
	calls  int
	values map[string]string
	err    error
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, errors.New("not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func TestResolveAppendsLatestVersion(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/demo/secrets/jwt/versions/latest": "hunter2",
	}}
	fetcher, err := NewFetcher(context.Background(), WithClient(client))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://projects/demo/secrets/jwt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "hunter2" {
		t.Errorf("expected hunter2, got %q", value)
	}
}

func TestResolveCachesLookups(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/demo/secrets/jwt/versions/3": "pinned",
	}}
	fetcher, err := NewFetcher(context.Background(), WithClient(client))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	for i := 0; i < 3; i++ {
		value, err := fetcher.Resolve(context.Background(), "secret://projects/demo/secrets/jwt/versions/3")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if value != "pinned" {
			t.Errorf("expected pinned, got %q", value)
		}
	}
	if client.calls != 1 {
		t.Errorf("expected 1 backend call, got %d", client.calls)
	}
}

func TestResolveRejectsNonReferences(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithClient(&fakeSecretClient{}))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	if _, err := fetcher.Resolve(context.Background(), "plain-value"); !errors.Is(err, ErrNotSecretReference) {
		t.Errorf("expected ErrNotSecretReference, got %v", err)
	}
	if _, err := fetcher.Resolve(context.Background(), "secret://bogus/path"); err == nil {
		t.Error("expected malformed reference to fail")
	}
}
