package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// mockChat captures the request and returns a canned response.
type mockChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (m *mockChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.req = req
	return m.resp, m.err
}

func jsonResponse(body string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: body}},
		},
	}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParse_Image(t *testing.T) {
	mock := &mockChat{resp: jsonResponse(`{"patient_name": "Jane Doe"}`)}
	p, err := New(Opts{Client: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	img := writeFile(t, t.TempDir(), "note.png", []byte("fake-png"))
	got, err := p.Parse(context.Background(), []string{img}, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got["patient_name"] != "Jane Doe" {
		t.Errorf("patient_name = %v, want Jane Doe", got["patient_name"])
	}

	// One user message: text prompt followed by one image part.
	if len(mock.req.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(mock.req.Messages))
	}
	content := mock.req.Messages[0].MultiContent
	if len(content) != 2 {
		t.Fatalf("content parts = %d, want 2", len(content))
	}
	if content[0].Type != openai.ChatMessagePartTypeText {
		t.Errorf("first part type = %q, want text", content[0].Type)
	}
	if !strings.Contains(content[0].Text, "strict JSON") {
		t.Errorf("prompt missing default instruction: %q", content[0].Text)
	}
	if content[1].Type != openai.ChatMessagePartTypeImageURL {
		t.Errorf("second part type = %q, want image_url", content[1].Type)
	}
	if !strings.HasPrefix(content[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image URL = %q, want data:image/png;base64 prefix", content[1].ImageURL.URL)
	}
	if mock.req.ResponseFormat == nil || mock.req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Error("response format not set to json_object")
	}
}

func TestParse_InstructionPrepended(t *testing.T) {
	mock := &mockChat{resp: jsonResponse(`{}`)}
	p, _ := New(Opts{Client: mock})

	img := writeFile(t, t.TempDir(), "note.jpg", []byte("fake"))
	if _, err := p.Parse(context.Background(), []string{img}, "Focus on allergies."); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	prompt := mock.req.Messages[0].MultiContent[0].Text
	if !strings.HasPrefix(prompt, "Focus on allergies.\n\n") {
		t.Errorf("caller instruction not prepended: %q", prompt)
	}
}

func TestParse_PDFRasterizedAndCleanedUp(t *testing.T) {
	mock := &mockChat{resp: jsonResponse(`{"title": "Discharge summary"}`)}

	var pages []string
	rasterize := func(path string) ([]string, error) {
		dir, err := os.MkdirTemp("", "pages-")
		if err != nil {
			return nil, err
		}
		for _, name := range []string{"doc-1.jpg", "doc-2.jpg"} {
			p := filepath.Join(dir, name)
			if err := os.WriteFile(p, []byte("fake-jpeg"), 0o644); err != nil {
				return nil, err
			}
			pages = append(pages, p)
		}
		return pages, nil
	}

	p, _ := New(Opts{Client: mock, Rasterize: rasterize})
	pdf := writeFile(t, t.TempDir(), "doc.pdf", []byte("%PDF-1.4"))
	got, err := p.Parse(context.Background(), []string{pdf}, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got["title"] != "Discharge summary" {
		t.Errorf("title = %v", got["title"])
	}

	// Prompt + two page images.
	if n := len(mock.req.Messages[0].MultiContent); n != 3 {
		t.Errorf("content parts = %d, want 3", n)
	}

	// Temporary page images must be gone.
	for _, page := range pages {
		if _, err := os.Stat(page); !os.IsNotExist(err) {
			t.Errorf("temp page %s not cleaned up", page)
		}
	}
}

func TestParse_CleanupOnModelError(t *testing.T) {
	mock := &mockChat{err: errors.New("rate limited")}

	var pages []string
	rasterize := func(path string) ([]string, error) {
		dir, err := os.MkdirTemp("", "pages-")
		if err != nil {
			return nil, err
		}
		p := filepath.Join(dir, "doc-1.jpg")
		if err := os.WriteFile(p, []byte("fake"), 0o644); err != nil {
			return nil, err
		}
		pages = append(pages, p)
		return pages, nil
	}

	p, _ := New(Opts{Client: mock, Rasterize: rasterize})
	pdf := writeFile(t, t.TempDir(), "doc.pdf", []byte("%PDF-1.4"))
	if _, err := p.Parse(context.Background(), []string{pdf}, ""); err == nil {
		t.Fatal("Parse succeeded, want error")
	}

	for _, page := range pages {
		if _, err := os.Stat(page); !os.IsNotExist(err) {
			t.Errorf("temp page %s not cleaned up after failure", page)
		}
	}
}

func TestParse_MissingFile(t *testing.T) {
	p, _ := New(Opts{Client: &mockChat{resp: jsonResponse(`{}`)}})
	_, err := p.Parse(context.Background(), []string{"/nonexistent/doc.pdf"}, "")
	if err == nil {
		t.Fatal("Parse succeeded, want error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestParse_EmptyModelOutput(t *testing.T) {
	p, _ := New(Opts{Client: &mockChat{resp: jsonResponse("")}})
	img := writeFile(t, t.TempDir(), "note.png", []byte("fake"))
	if _, err := p.Parse(context.Background(), []string{img}, ""); err == nil {
		t.Fatal("Parse succeeded, want error for empty output")
	}
}

func TestMimeForFile(t *testing.T) {
	cases := map[string]string{
		"a.pdf":  "application/pdf",
		"a.jpg":  "image/jpeg",
		"a.JPEG": "image/jpeg",
		"a.webp": "image/webp",
		"a.tiff": "image/tiff",
		"a.png":  "image/png",
		"a.bin":  "image/png",
	}
	for name, want := range cases {
		if got := mimeForFile(name); got != want {
			t.Errorf("mimeForFile(%q) = %q, want %q", name, got, want)
		}
	}
}
