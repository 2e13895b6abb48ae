package filter

import "testing"

func TestDisabledAcceptsEverything(t *testing.T) {
	f, err := New("   ")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if f.Enabled() {
		t.Fatalf("blank expression must disable the filter")
	}
	if !f.Accept([]byte("anything"), nil) {
		t.Fatalf("disabled filter rejected")
	}
}

func TestTextMatch(t *testing.T) {
	f, err := New(`text.contains("order")`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Accept([]byte("order created"), nil) {
		t.Fatalf("should accept matching text")
	}
	if f.Accept([]byte("heartbeat"), nil) {
		t.Fatalf("should reject non-matching text")
	}
}

func TestJSONFieldMatch(t *testing.T) {
	f, err := New(`json.kind == "payment" && size < 1024`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Accept([]byte(`{"kind":"payment","amount":5}`), nil) {
		t.Fatalf("should accept matching json")
	}
	if f.Accept([]byte(`{"kind":"audit"}`), nil) {
		t.Fatalf("should reject non-matching json")
	}
}

func TestHeadersMatch(t *testing.T) {
	f, err := New(`headers["tenant"] == "acme"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Accept([]byte("x"), map[string]string{"tenant": "acme"}) {
		t.Fatalf("should accept matching header")
	}
	if f.Accept([]byte("x"), nil) {
		t.Fatalf("missing header must reject, not error through")
	}
}

func TestCompileError(t *testing.T) {
	if _, err := New(`text ==`); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestNonBoolExpressionRejects(t *testing.T) {
	f, err := New(`size`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if f.Accept([]byte("x"), nil) {
		t.Fatalf("non-bool result must reject")
	}
}
