package paystack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestInitializeTransactionRequest(t *testing.T) {
	var captured *http.Request
	var payload map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.test/abc","access_code":"abc","reference":"FND-1"}}`), nil
	})

	client, err := NewClient("sk_test", WithBaseURL("http://gateway.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:     "buyer@example.com",
		Amount:    500000,
		Reference: "FND-1",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if captured.URL.String() != "http://gateway.test/transaction/initialize" {
		t.Fatalf("unexpected url %s", captured.URL)
	}
	if captured.Header.Get("Authorization") != "Bearer sk_test" {
		t.Fatalf("missing bearer auth")
	}
	if payload["amount"].(float64) != 500000 {
		t.Fatalf("unexpected amount %v", payload["amount"])
	}
	if resp.AuthorizationURL != "https://checkout.test/abc" || resp.Reference != "FND-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestVerifyTransactionDecodesConfirmation(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/transaction/verify/FND-9" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"status":true,"message":"Verification successful","data":{"id":1,"status":"success","reference":"FND-9","amount":250000,"currency":"NGN"}}`), nil
	})
	client, _ := NewClient("sk_test", WithBaseURL("http://gateway.test"), WithHTTPClient(&http.Client{Transport: rt}))

	tx, err := client.VerifyTransaction(context.Background(), "FND-9")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !tx.Succeeded() || tx.Amount != 250000 {
		t.Fatalf("unexpected confirmation %+v", tx)
	}
}

func TestProviderFailureIsDependencyError(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"status":false,"message":"Insufficient balance"}`), nil
	})
	client, _ := NewClient("sk_test", WithHTTPClient(&http.Client{Transport: rt}))

	_, err := client.InitiateTransfer(context.Background(), TransferRequest{Recipient: "RCP_1", Amount: 1000, Reference: "PO-1"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	details, _ := typed.Details().(map[string]any)
	if details["reason"] != "Insufficient balance" {
		t.Fatalf("expected provider reason in details, got %v", typed.Details())
	}
}

func TestTimeoutIsDependencyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"status":true,"data":{}}`))
	}))
	defer server.Close()

	client, _ := NewClient("sk_test", WithBaseURL(server.URL), WithTimeout(20*time.Millisecond))
	_, err := client.CreateTransferRecipient(context.Background(), RecipientRequest{Name: "Ada", AccountNumber: "0123456789", BankCode: "058"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error on timeout, got %v", err)
	}
	details, _ := typed.Details().(map[string]any)
	if details["reason"] != "payment partner timed out" {
		t.Fatalf("expected timeout reason, got %v", typed.Details())
	}
}

func TestListBanksAndResolveAccount(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/bank":
			if req.URL.Query().Get("country") != "nigeria" {
				t.Fatalf("expected country filter")
			}
			return jsonResponse(http.StatusOK, `{"status":true,"data":[{"name":"GTBank","code":"058","active":true}]}`), nil
		case "/bank/resolve":
			return jsonResponse(http.StatusOK, `{"status":true,"data":{"account_number":"0123456789","account_name":"ADA OBI"}}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})
	client, _ := NewClient("sk_test", WithHTTPClient(&http.Client{Transport: rt}))

	banks, err := client.ListBanks(context.Background(), "nigeria")
	if err != nil || len(banks) != 1 || banks[0].Code != "058" {
		t.Fatalf("unexpected banks %+v err=%v", banks, err)
	}
	acct, err := client.ResolveAccount(context.Background(), "0123456789", "058")
	if err != nil || acct.AccountName != "ADA OBI" {
		t.Fatalf("unexpected account %+v err=%v", acct, err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error without secret key")
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"FND-1"}}`)
	sig := Sign("whsec", body)

	if !VerifySignature("whsec", body, sig) {
		t.Fatal("expected valid signature")
	}
	if !VerifySignature("whsec", body, strings.ToUpper(sig)) {
		t.Fatal("hex case must not matter")
	}
	if VerifySignature("whsec", append(body, ' '), sig) {
		t.Fatal("signature must cover the exact raw body")
	}
	if VerifySignature("other", body, sig) {
		t.Fatal("wrong secret must fail")
	}
	if VerifySignature("whsec", body, "") {
		t.Fatal("missing signature must fail")
	}
	if VerifySignature("whsec", body, "not-hex") {
		t.Fatal("malformed signature must fail")
	}
}

func TestTransactionOutcome(t *testing.T) {
	tests := []struct {
		status    string
		succeeded bool
		failed    bool
	}{
		{"success", true, false},
		{"failed", false, true},
		{"reversed", false, true},
		{"abandoned", false, false},
		{"ongoing", false, false},
		{"pending", false, false},
		{"processing", false, false},
	}
	for _, tt := range tests {
		tx := Transaction{Status: tt.status}
		if tx.Succeeded() != tt.succeeded || tx.Failed() != tt.failed {
			t.Fatalf("status %q: succeeded=%v failed=%v", tt.status, tx.Succeeded(), tx.Failed())
		}
	}
}
