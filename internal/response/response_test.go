package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nlstn/go-adminrest/internal/query"
)

type note struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		accept string
		want   string
		ok     bool
	}{
		{"", ContentTypeJSON, true},
		{"*/*", ContentTypeJSON, true},
		{"application/*", ContentTypeJSON, true},
		{"application/json", ContentTypeJSON, true},
		{"application/hal+json", ContentTypeHAL, true},
		{"text/html, application/hal+json;q=0.9", ContentTypeHAL, true},
		{"application/json;q=0.5, application/hal+json", ContentTypeHAL, true},
		{"application/json;q=0, text/plain", "", false},
		{"text/csv", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rest/note", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			got, ok := Negotiate(req)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("Negotiate(%q) = %q, %v; want %q, %v", tt.accept, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rest/note/1", nil)

	if err := WriteError(w, req, http.StatusNotFound, "Entity not found", "no note 1"); err != nil {
		t.Fatalf("WriteError failed: %v", err)
	}
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var body ErrorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Error.Code != "Entity not found" || body.Error.Message != "no note 1" {
		t.Fatalf("body = %+v", body)
	}
}

func TestWriteValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rest/note", nil)

	err := WriteValidationErrors(w, req, []FieldMessage{{Field: "text", Message: "may not be null"}})
	if err != nil {
		t.Fatalf("WriteValidationErrors failed: %v", err)
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	want := `{"errors":[{"field":"text","message":"may not be null"}]}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("body = %s, want %s", got, want)
	}
}

func TestWriteEntityETag(t *testing.T) {
	entity := &note{ID: 1, Text: "hello"}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rest/note/1", nil)
	if err := WriteEntity(w, req, http.StatusOK, ContentTypeJSON, entity, ""); err != nil {
		t.Fatalf("WriteEntity failed: %v", err)
	}
	tag := w.Header().Get(HeaderETag)
	if w.Code != http.StatusOK || tag == "" {
		t.Fatalf("status = %d etag = %q", w.Code, tag)
	}
	if got := w.Header().Get(HeaderContentType); got != ContentTypeJSON {
		t.Fatalf("Content-Type = %q", got)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/rest/note/1", nil)
	req.Header.Set(HeaderIfNoneMatch, tag)
	if err := WriteEntity(w, req, http.StatusOK, ContentTypeJSON, entity, ""); err != nil {
		t.Fatalf("WriteEntity failed: %v", err)
	}
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("status = %d body = %q, want empty 304", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodHead, "/rest/note/1", nil)
	if err := WriteEntity(w, req, http.StatusOK, ContentTypeJSON, entity, ""); err != nil {
		t.Fatalf("WriteEntity failed: %v", err)
	}
	if w.Code != http.StatusOK || w.Body.Len() != 0 || w.Header().Get("Content-Length") == "" {
		t.Fatalf("HEAD status = %d body = %q", w.Code, w.Body.String())
	}
}

func TestWriteEntityHAL(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rest/note/1", nil)
	if err := WriteEntity(w, req, http.StatusOK, ContentTypeHAL, &note{ID: 1}, "http://example.com/rest/note/1"); err != nil {
		t.Fatalf("WriteEntity failed: %v", err)
	}

	var body struct {
		ID    int `json:"id"`
		Links struct {
			Self struct {
				Href string `json:"href"`
			} `json:"self"`
		} `json:"_links"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.ID != 1 || body.Links.Self.Href != "http://example.com/rest/note/1" {
		t.Fatalf("body = %+v", body)
	}
	if got := w.Header().Get(HeaderContentType); got != ContentTypeHAL {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestWritePage(t *testing.T) {
	items := []interface{}{&note{ID: 1}, &note{ID: 2}, &note{ID: 3}, &note{ID: 4}, &note{ID: 5}}
	page := query.SelectPage(items, query.PageRequest{Page: 1, Size: 2})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/rest/note/scope/all/search?page=2&limit=2&text=a", nil)
	if err := WritePage(w, req, ContentTypeJSON, page); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}

	var body PagedResources
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(body.Content) != 2 {
		t.Fatalf("content = %v", body.Content)
	}
	want := query.PageMetadata{Size: 2, Number: 2, TotalElements: 5, TotalPages: 3}
	if body.Page != want {
		t.Fatalf("page = %+v, want %+v", body.Page, want)
	}

	rels := map[string]string{}
	for _, link := range body.Links {
		rels[link.Rel] = link.Href
	}
	if rels["next"] != "http://example.com/rest/note/scope/all/search?limit=2&page=3&text=a" {
		t.Errorf("next = %q", rels["next"])
	}
	if rels["prev"] != "http://example.com/rest/note/scope/all/search?limit=2&page=1&text=a" {
		t.Errorf("prev = %q", rels["prev"])
	}
	if rels["self"] == "" {
		t.Error("self link missing")
	}
}

func TestWritePageEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rest/note", nil)
	if err := WritePage(w, req, ContentTypeHAL, query.NewPage(nil, query.PageRequest{Size: 10}, 0)); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(body["content"]) != "[]" {
		t.Errorf("content = %s, want []", body["content"])
	}
	if _, ok := body["_links"]; !ok {
		t.Error("HAL page without _links")
	}
}

func TestBuildBaseURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://internal:8080/rest/note", nil)
	req.Header.Set("X-Forwarded-Proto", "https, http")
	if got := BuildBaseURL(req); got != "https://internal:8080" {
		t.Fatalf("BuildBaseURL = %q", got)
	}
	if got := BuildEntityLink(req, "/rest/note/", "a b"); got != "https://internal:8080/rest/note/a%20b" {
		t.Fatalf("BuildEntityLink = %q", got)
	}
}

func TestEntityTagMatchesEveryMediaType(t *testing.T) {
	entity := &note{ID: 3, Text: "tagged"}
	want, err := EntityTag(entity)
	if err != nil {
		t.Fatalf("EntityTag failed: %v", err)
	}

	for _, mediaType := range []string{ContentTypeJSON, ContentTypeHAL} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/rest/note/3", nil)
		if err := WriteEntity(w, req, http.StatusOK, mediaType, entity, "http://example.com/rest/note/3"); err != nil {
			t.Fatalf("WriteEntity failed: %v", err)
		}
		if got := w.Header().Get(HeaderETag); got != want {
			t.Errorf("%s ETag = %q, want %q", mediaType, got, want)
		}
	}
}
