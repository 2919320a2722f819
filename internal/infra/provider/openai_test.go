package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/martinvidela/chatforge/internal/infra/filestore"
)

func TestOpenAI_Direct_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			http.Error(w, "bad auth", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}],"usage":{"total_tokens":42}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "sk-test", "gpt-4.1-mini", stubFiles{})
	reply, err := p.SendMessage(context.Background(), []ChatMessage{{Role: RoleUser, Content: "Hello"}}, SendOptions{Temperature: 0.7, MaxTokens: 256})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Content != "hi there" {
		t.Errorf("expected content 'hi there', got %q", reply.Content)
	}
	if reply.TokensUsed != 42 {
		t.Errorf("expected upstream total tokens 42, got %d", reply.TokensUsed)
	}
}

func TestOpenAI_ImageOnly_TakesDirectPath(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	paths := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"an image"}}],"usage":{"total_tokens":10}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	files := stubFiles{data: map[string][]byte{"/up/cat.png": []byte("pngbytes")}}
	p := NewOpenAI(srv.URL, "sk-test", "gpt-4.1-mini", files)
	_, err := p.SendMessage(context.Background(), []ChatMessage{{Role: RoleUser, Content: "what is this"}}, SendOptions{
		Attachments: []filestore.Descriptor{{Filename: "cat.png", ContentType: "image/png", StoragePath: "/up/cat.png"}},
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "/chat/completions" {
		t.Errorf("image-only send must use the direct path, saw %v", paths)
	}
}

func TestOpenAI_NonDocumentAttachment_StaysOnDirectPath(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	paths := []string{}
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		body := make([]byte, r.ContentLength)
		r.Body.Read(body) //nolint:errcheck
		captured = body
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	files := stubFiles{data: map[string][]byte{"/up/bundle.zip": []byte("zipbytes")}}
	p := NewOpenAI(srv.URL, "sk-test", "gpt-4.1-mini", files)
	_, err := p.SendMessage(context.Background(), []ChatMessage{{Role: RoleUser, Content: "what is this"}}, SendOptions{
		Attachments: []filestore.Descriptor{{Filename: "bundle.zip", ContentType: "application/zip", StoragePath: "/up/bundle.zip"}},
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "/chat/completions" {
		t.Errorf("a non-document attachment must not trigger the assistants path, saw %v", paths)
	}
	if !strings.Contains(string(captured), "[Attachment bundle.zip: file type not supported]") {
		t.Errorf("expected unsupported-type notice in request body, got %s", captured)
	}
}

func TestOpenAI_MixedDocumentAndUnsupported_NoticeRidesAssistantsThread(t *testing.T) {
	t.Parallel()

	fake := &assistantsServer{runStatuses: []string{"completed"}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	files := stubFiles{data: map[string][]byte{
		"/up/doc.pdf":    []byte("%PDF-1.4 fake"),
		"/up/bundle.zip": []byte("zipbytes"),
	}}
	p := NewOpenAI(srv.URL, "sk-test", "gpt-4.1-mini", files)
	p.pollInterval = time.Millisecond
	p.runTimeout = 5 * time.Second
	_, err := p.SendMessage(context.Background(), []ChatMessage{{Role: RoleUser, Content: "summarize"}}, SendOptions{
		Attachments: []filestore.Descriptor{
			{Filename: "doc.pdf", ContentType: "application/pdf", StoragePath: "/up/doc.pdf", StoredName: "doc.pdf"},
			{Filename: "bundle.zip", ContentType: "application/zip", StoragePath: "/up/bundle.zip", StoredName: "bundle.zip"},
		},
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.uploads != 1 {
		t.Errorf("only the document may be uploaded, got %d uploads", fake.uploads)
	}
}

func TestOpenAI_UnreadableImage_BecomesTextMarker(t *testing.T) {
	t.Parallel()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body) //nolint:errcheck
		captured = body
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "sk-test", "gpt-4.1-mini", stubFiles{})
	_, err := p.SendMessage(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, SendOptions{
		Attachments: []filestore.Descriptor{{Filename: "gone.png", ContentType: "image/png", StoragePath: "/missing"}},
	})
	if err != nil {
		t.Fatalf("SendMessage should recover from unreadable attachment, got %v", err)
	}
	if !strings.Contains(string(captured), "[Error processing image: gone.png]") {
		t.Errorf("expected error marker in request body, got %s", captured)
	}
}

// assistantsServer fakes the subset of the assistants API the adapter uses.
type assistantsServer struct {
	mu          sync.Mutex
	runStatuses []string // statuses returned by successive run polls
	pollCount   int
	deleted     []string // DELETE paths seen
	uploads     int
}

func (s *assistantsServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodDelete:
			s.deleted = append(s.deleted, r.URL.Path)
			w.Write([]byte(`{"deleted":true}`)) //nolint:errcheck
		case r.URL.Path == "/files":
			s.uploads++
			w.Write([]byte(`{"id":"file_1"}`)) //nolint:errcheck
		case r.URL.Path == "/assistants":
			w.Write([]byte(`{"id":"asst_1"}`)) //nolint:errcheck
		case r.URL.Path == "/threads":
			w.Write([]byte(`{"id":"thread_1"}`)) //nolint:errcheck
		case r.URL.Path == "/threads/thread_1/messages" && r.Method == http.MethodPost:
			w.Write([]byte(`{"id":"msg_1"}`)) //nolint:errcheck
		case r.URL.Path == "/threads/thread_1/runs":
			w.Write([]byte(`{"id":"run_1","status":"queued"}`)) //nolint:errcheck
		case r.URL.Path == "/threads/thread_1/runs/run_1":
			status := s.runStatuses[len(s.runStatuses)-1]
			if s.pollCount < len(s.runStatuses) {
				status = s.runStatuses[s.pollCount]
			}
			s.pollCount++
			json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": status}) //nolint:errcheck
		case r.URL.Path == "/threads/thread_1/messages" && r.Method == http.MethodGet:
			w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"summary of the doc"}}]}]}`)) //nolint:errcheck
		default:
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
		}
	}
}

func pdfSend(t *testing.T, srvURL string, runTimeout time.Duration) (*Reply, error) {
	t.Helper()
	files := stubFiles{data: map[string][]byte{"/up/doc.pdf": []byte("%PDF-1.4 fake")}}
	p := NewOpenAI(srvURL, "sk-test", "gpt-4.1-mini", files)
	p.pollInterval = time.Millisecond
	p.runTimeout = runTimeout
	return p.SendMessage(context.Background(), []ChatMessage{{Role: RoleUser, Content: "summarize"}}, SendOptions{
		SystemPrompt: "be brief",
		Attachments:  []filestore.Descriptor{{Filename: "doc.pdf", ContentType: "application/pdf", StoragePath: "/up/doc.pdf", StoredName: "doc.pdf"}},
	})
}

func TestOpenAI_PDFAttachment_TakesAssistantsPath(t *testing.T) {
	t.Parallel()

	fake := &assistantsServer{runStatuses: []string{"queued", "in_progress", "completed"}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	reply, err := pdfSend(t, srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Content != "summary of the doc" {
		t.Errorf("unexpected reply %q", reply.Content)
	}
	if reply.TokensUsed != 0 {
		t.Errorf("assistants path must report 0 tokens, got %d", reply.TokensUsed)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.uploads != 1 {
		t.Errorf("expected 1 file upload, got %d", fake.uploads)
	}
	wantDeleted := map[string]bool{"/assistants/asst_1": false, "/files/file_1": false}
	for _, path := range fake.deleted {
		wantDeleted[path] = true
	}
	for path, seen := range wantDeleted {
		if !seen {
			t.Errorf("expected cleanup DELETE %s", path)
		}
	}
}

func TestOpenAI_RunFailure_IsProviderError(t *testing.T) {
	t.Parallel()

	fake := &assistantsServer{runStatuses: []string{"failed"}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	_, err := pdfSend(t, srv.URL, 5*time.Second)
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if !strings.Contains(provErr.Message, "failed") {
		t.Errorf("expected run failure detail, got %q", provErr.Message)
	}

	// cleanup must run even though the run failed
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.deleted) == 0 {
		t.Error("expected cleanup deletes after a failed run")
	}
}

func TestOpenAI_RunPolling_TimesOut(t *testing.T) {
	t.Parallel()

	fake := &assistantsServer{runStatuses: []string{"in_progress"}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	_, err := pdfSend(t, srv.URL, 20*time.Millisecond)
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("timeout must surface as a *ProviderError, got %T", err)
	}
}

func TestOpenAI_UpstreamError_CarriesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "sk-test", "gpt-4.1-mini", stubFiles{})
	_, err := p.SendMessage(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, SendOptions{})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if provErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", provErr.StatusCode)
	}
}
