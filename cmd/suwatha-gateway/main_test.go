package main

import "testing"

func TestWebhookSubscriberName(t *testing.T) {
	if got := webhookSubscriberName(0, "https://hooks.example:8443/suwatha"); got != "hooks.example:8443" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := webhookSubscriberName(2, "::bad"); got != "webhook-3" {
		t.Fatalf("unexpected fallback name %q", got)
	}
}
