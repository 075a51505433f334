package lfsauth

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type fakeAccounts struct {
	ids map[string]string
}

func (f fakeAccounts) UserIDByUsername(_ context.Context, username string) (string, bool, error) {
	id, ok := f.ids[username]
	return id, ok, nil
}

type fakeTokens struct {
	token string
}

func (f fakeTokens) MintLFSToken(_ context.Context, _ string, ttl time.Duration) (string, time.Duration, error) {
	return f.token, ttl, nil
}

func TestResponseShape(t *testing.T) {
	resp := response{
		Href:      "https://git.example.com/~alice/demo.git/info/lfs",
		Header:    map[string]string{"Authorization": "RemoteAuth tok123"},
		ExpiresIn: 86400,
	}
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var round map[string]any
	if err := json.Unmarshal(body, &round); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if round["href"] != resp.Href {
		t.Errorf("href = %v, want %v", round["href"], resp.Href)
	}
	if round["expires_in"].(float64) != 86400 {
		t.Errorf("expires_in = %v, want 86400", round["expires_in"])
	}
	header, ok := round["header"].(map[string]any)
	if !ok || header["Authorization"] != "RemoteAuth tok123" {
		t.Errorf("header = %v, want Authorization=RemoteAuth tok123", round["header"])
	}
}

func TestMintLFSTokenTTL(t *testing.T) {
	tokens := fakeTokens{token: "abc"}
	_, ttl, err := tokens.MintLFSToken(context.Background(), "u1", TokenTTL)
	if err != nil {
		t.Fatalf("MintLFSToken: %v", err)
	}
	if ttl != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", ttl)
	}
}
