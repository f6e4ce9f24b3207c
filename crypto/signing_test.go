package crypto

import "testing"

// TestSignOrderPayload pins a fixed-key-order SendOrder payload to a
// stable compact JSON body and a 64-character lowercase hex digest.
func TestSignOrderPayload(t *testing.T) {
	var payload OrderedPayload
	payload.Set("symbol", "AKBNK")
	payload.Set("direction", "BUY")
	payload.Set("pricetype", "limit")
	payload.Set("price", "45.50")
	payload.Set("lot", "10")
	payload.Set("sms", false)
	payload.Set("email", false)
	payload.Set("subAccount", "")

	compact, err := payload.CompactJSON()
	if err != nil {
		t.Fatalf("CompactJSON: %v", err)
	}

	want := `{"symbol":"AKBNK","direction":"BUY","pricetype":"limit","price":"45.50","lot":"10","sms":false,"email":false,"subAccount":""}`
	if compact != want {
		t.Fatalf("CompactJSON mismatch:\ngot:  %s\nwant: %s", compact, want)
	}

	checker, err := Sign("K", "https://broker.test", "/api/SendOrder", payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(checker) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars: %s", len(checker), checker)
	}
	for _, r := range checker {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			t.Fatalf("checker is not lowercase hex: %s", checker)
		}
	}
}

func TestSignIsOrderSensitive(t *testing.T) {
	var a, b OrderedPayload
	a.Set("x", 1)
	a.Set("y", 2)
	b.Set("y", 2)
	b.Set("x", 1)

	sigA, err := Sign("K", "h", "/e", a)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sigB, err := Sign("K", "h", "/e", b)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sigA == sigB {
		t.Fatal("expected signatures to differ when insertion order differs")
	}
}

func TestSignEmptyPayload(t *testing.T) {
	checker, err := Sign("K", "https://broker.test", "/api/GetSubAccounts", nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(checker) != 64 {
		t.Fatalf("expected 64-char hex digest for empty payload, got %d", len(checker))
	}
}
