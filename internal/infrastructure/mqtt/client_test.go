package mqtt

import (
	"testing"
)

// Tests here cover behaviour that does not require a running broker.
// Connection, publish and subscribe round-trips are exercised against a
// live Mosquitto instance by the integration suite.

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	// connected defaults to false and short-circuits before the nil paho
	// client is consulted.
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestSetCallbacks(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	client.SetOnConnect(func() {})
	client.SetOnDisconnect(func(error) {})
	client.SetLogger(nil)

	client.callbackMu.RLock()
	defer client.callbackMu.RUnlock()
	if client.onConnect == nil {
		t.Error("SetOnConnect() did not store callback")
	}
	if client.onDisconnect == nil {
		t.Error("SetOnDisconnect() did not store callback")
	}
}

func TestSubscriptionTracking(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
	if client.HasSubscription("wattagent/device/+/telemetry") {
		t.Error("HasSubscription() = true for untracked topic")
	}

	client.subMu.Lock()
	client.subscriptions["wattagent/device/+/telemetry"] = subscription{
		topic: "wattagent/device/+/telemetry",
		qos:   1,
	}
	client.subMu.Unlock()

	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}
	if !client.HasSubscription("wattagent/device/+/telemetry") {
		t.Error("HasSubscription() = false for tracked topic")
	}
}
