package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_Routes(t *testing.T) {
	InitMetrics()
	srv := NewServer(":0")

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/health", 200},
		{"/health/live", 200},
		{"/health/ready", 200},
		{"/metrics", 200},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", tt.path, nil)
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, tt.wantStatus, rec.Code, tt.path)
	}
}

func TestInitMetrics_Idempotent(t *testing.T) {
	// Double registration would panic inside MustRegister.
	InitMetrics()
	InitMetrics()
}

func TestRecordHelpers(t *testing.T) {
	InitMetrics()

	// Exercise every helper; values land in the default registry.
	RecordChatMessage("concept_teaching", "intermediate", 120)
	RecordGenerationFallback("gemini")
	RecordTokenUsage("openrouter", 100, 40)
	RecordTokenUsage("openrouter", 0, 0)
	RecordRetrieval(5)
	SetActiveSessions(3)
	RecordSessionStarted()
	RecordSessionEnded("user")
	RecordSessionEnded("reaper")
	RecordDocumentsIngested("beginner", 12)
	RecordDocumentsIngested("advanced", 0)
}
