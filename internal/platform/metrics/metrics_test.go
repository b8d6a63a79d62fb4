package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterVecRendering(t *testing.T) {
	reg := NewRegistry()
	vec := NewCounterVec(Opts{
		Name: "test_events_total",
		Help: "Test counter.",
	}, []string{"topic", "binding"})
	reg.MustRegister(vec)

	vec.WithLabelValues("task-events", "direct").Inc()
	vec.WithLabelValues("task-events", "direct").Inc()
	vec.WithLabelValues("reminders", "sidecar").Add(3)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"# TYPE test_events_total counter",
		`test_events_total{topic="task-events",binding="direct"} 2`,
		`test_events_total{topic="reminders",binding="sidecar"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("output missing %q:\n%s", want, body)
		}
	}
}

func TestCounterIgnoresNegativeAdd(t *testing.T) {
	vec := NewCounterVec(Opts{Name: "test_total", Help: "t"}, nil)
	c := vec.WithLabelValues()
	c.Add(-1)
	c.Inc()

	var sb strings.Builder
	vec.writePrometheus(&sb)
	if !strings.Contains(sb.String(), "test_total 1") {
		t.Fatalf("output:\n%s", sb.String())
	}
}

func TestMustRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewCounterVec(Opts{Name: "dup_total", Help: "t"}, nil))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg.MustRegister(NewCounterVec(Opts{Name: "dup_total", Help: "t"}, nil))
}
