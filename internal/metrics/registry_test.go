package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitDefault(t *testing.T) {
	Reset()

	m := InitDefault()
	if m == nil {
		t.Fatal("expected metrics, got nil")
	}
	if m != Default {
		t.Error("expected returned metrics to be same as Default")
	}

	if m2 := InitDefault(); m2 != m {
		t.Error("expected same instance on second call")
	}
	if m3 := GetDefault(); m3 != m {
		t.Error("expected GetDefault to return Default instance")
	}
}

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()
	if reg == nil || m == nil {
		t.Fatal("expected registry and metrics")
	}

	m.RecordGuard("admin", "allow")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"storefront_guard_decisions_total", "go_goroutines"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordGatewayRequest("auth/login", "200")

	handler := HandlerFor(reg, DefaultHandlerOpts())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "storefront_gateway_requests_total") {
		t.Error("metrics output does not contain gateway_requests_total")
	}
}

func TestMultipleRegistries(t *testing.T) {
	reg1, m1 := NewRegistry()
	reg2, _ := NewRegistry()

	m1.RecordStatus("loading")

	body := func(h http.Handler) string {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
		return w.Body.String()
	}

	if !strings.Contains(body(HandlerFor(reg1, DefaultHandlerOpts())), `status="loading"`) {
		t.Error("first registry missing recorded status")
	}
	if strings.Contains(body(HandlerFor(reg2, DefaultHandlerOpts())), `status="loading"`) {
		t.Error("second registry should not see the first registry's series")
	}
}
