package chat_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/docent/internal/chat"
	"github.com/MrWong99/docent/pkg/backend"
)

type fixture struct {
	log     *chat.Log
	banners *chat.Notifier
	svc     *chat.Service
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := backend.New(srv.URL)
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	f := &fixture{log: chat.NewLog(), banners: chat.NewNotifier(time.Hour, time.Hour)}
	f.svc = chat.NewService(client, f.log, f.banners)
	return f
}

func (f *fixture) onlyBanner(t *testing.T, level chat.Level) *chat.Banner {
	t.Helper()
	active := f.banners.Active()
	if len(active) != 1 {
		t.Fatalf("got %d banners, want 1", len(active))
	}
	if active[0].Level != level {
		t.Fatalf("banner %q level = %d, want %d", active[0].Text, active[0].Level, level)
	}
	return active[0]
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSendMessage_AppendsPair(t *testing.T) {
	t.Parallel()

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/chat" || req.Question != "hello" {
			http.Error(w, "unexpected", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"response":"hi"}`)
	}))

	if err := f.svc.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	entries := f.log.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Role != chat.RoleUser || entries[0].Text != "hello" {
		t.Errorf("first = %+v", entries[0])
	}
	if entries[1].Role != chat.RoleAssistant || entries[1].Text != "hi" {
		t.Errorf("second = %+v", entries[1])
	}
}

func TestSendMessage_EmptyResponseAddsOnlyUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	if err := f.svc.SendMessage(context.Background(), "anyone?"); err != nil {
		t.Fatal(err)
	}
	if f.log.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.log.Len())
	}
}

func TestSendMessage_FailureAddsOneErrorEntry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"model offline"}`)
	}))
	if err := f.svc.SendMessage(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	entries := f.log.Entries()
	if len(entries) != 2 || entries[1].Role != chat.RoleError {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].Text != "Error: model offline" {
		t.Errorf("error text = %q", entries[1].Text)
	}
}

func TestSendMessage_IgnoresEmptyQuestion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("backend called for empty question")
	}))
	if err := f.svc.SendMessage(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if f.log.Len() != 0 {
		t.Errorf("Len() = %d", f.log.Len())
	}
}

func TestClearChat(t *testing.T) {
	t.Parallel()

	t.Run("success clears log", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"message":"ok"}`)
		}))
		f.log.Append(chat.RoleUser, "q")
		f.log.SetLive(chat.RoleAssistant, "partial")

		if err := f.svc.ClearChat(context.Background()); err != nil {
			t.Fatal(err)
		}
		if f.log.Len() != 0 || f.log.Live(chat.RoleAssistant) != "" {
			t.Error("log not cleared")
		}
		f.onlyBanner(t, chat.LevelSuccess)
	})

	t.Run("failure keeps log and adds one error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":"db locked"}`)
		}))
		f.log.Append(chat.RoleUser, "q")
		f.log.Append(chat.RoleAssistant, "a")

		if err := f.svc.ClearChat(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		entries := f.log.Entries()
		if len(entries) != 3 {
			t.Fatalf("got %d entries, want 3", len(entries))
		}
		if entries[0].Text != "q" || entries[1].Text != "a" {
			t.Errorf("original entries changed: %+v", entries[:2])
		}
		if entries[2].Role != chat.RoleError || entries[2].Text != "Error clearing chat: db locked" {
			t.Errorf("error entry = %+v", entries[2])
		}
	})
}

func TestUploadPDF(t *testing.T) {
	t.Parallel()

	names := make(chan string, 1)
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = file.Close()
		names <- hdr.Filename
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	}))

	path := writeFile(t, "report.pdf", "%PDF-1.4")
	if err := f.svc.UploadPDF(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if got := <-names; got != "report.pdf" {
		t.Errorf("filename = %q", got)
	}
	if b := f.onlyBanner(t, chat.LevelSuccess); !strings.Contains(b.Text, "report.pdf") {
		t.Errorf("banner = %q", b.Text)
	}
}

func TestUploadPDF_MissingFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, http.NotFoundHandler())
	if err := f.svc.UploadPDF(context.Background(), filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Fatal("expected error")
	}
	f.onlyBanner(t, chat.LevelError)
}

func TestProcessAndClearPDF(t *testing.T) {
	t.Parallel()

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/process-pdf":
			_, _ = io.WriteString(w, `{"name":"Jane"}`)
		case "/clear-pdf":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"No PDF uploaded"}`)
		}
	}))

	info, err := f.svc.ProcessPDF(context.Background())
	if err != nil || string(info) != `{"name":"Jane"}` {
		t.Fatalf("ProcessPDF = %s, %v", info, err)
	}
	f.banners.Clear()

	f.log.Append(chat.RoleUser, "kept")
	if err := f.svc.ClearPDF(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if f.log.Len() != 1 {
		t.Error("log cleared despite failure")
	}
	if b := f.onlyBanner(t, chat.LevelError); b.Text != "Error clearing PDF: No PDF uploaded" {
		t.Errorf("banner = %q", b.Text)
	}
}

func TestMatchingWorkflow(t *testing.T) {
	t.Parallel()

	var cvFiles atomic.Int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload-jd":
			_, _ = io.WriteString(w, `{"message":"ok","pages":3,"filename":"jd.pdf"}`)
		case "/upload-cvs":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			cvFiles.Store(int32(len(r.MultipartForm.File["files"])))
			_, _ = io.WriteString(w, `{"message":"ok","cv_count":2,"files":[]}`)
		case "/compare-cvs":
			_, _ = io.WriteString(w, `{"matches":[{"cv_name":"a.pdf","match_percentage":91},{"cv_name":"b.pdf","match_percentage":42}]}`)
		case "/clear-matching":
			_, _ = io.WriteString(w, `{"message":"cleared"}`)
		}
	}))
	ctx := context.Background()

	var published [][]backend.Match
	f.svc.OnMatches(func(m []backend.Match) { published = append(published, m) })

	jd, err := f.svc.UploadJD(ctx, writeFile(t, "jd.pdf", "x"))
	if err != nil || jd.Pages != 3 {
		t.Fatalf("UploadJD = %+v, %v", jd, err)
	}
	if _, err := f.svc.UploadCVs(ctx, []string{writeFile(t, "a.pdf", "a"), writeFile(t, "b.pdf", "b")}); err != nil {
		t.Fatal(err)
	}
	if n := cvFiles.Load(); n != 2 {
		t.Errorf("server saw %d CV parts, want 2", n)
	}

	matches, err := f.svc.CompareDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].Grade() != backend.GradeHigh || matches[1].Grade() != backend.GradeLow {
		t.Errorf("matches = %+v", matches)
	}
	if len(f.svc.Matches()) != 2 {
		t.Error("ranking not kept")
	}

	if err := f.svc.ClearMatching(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.svc.Matches()) != 0 {
		t.Error("ranking not cleared")
	}
	if len(published) != 2 || len(published[1]) != 0 {
		t.Errorf("published = %v", published)
	}
}

func TestCompareDocuments_Failure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"Please upload both JD and CVs first"}`)
	}))
	if _, err := f.svc.CompareDocuments(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	b := f.onlyBanner(t, chat.LevelError)
	if !strings.HasSuffix(b.Text, "Please upload both JD and CVs first") {
		t.Errorf("banner = %q", b.Text)
	}
}
