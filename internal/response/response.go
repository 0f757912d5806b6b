package response

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/nlstn/go-adminrest/internal/etag"
	"github.com/nlstn/go-adminrest/internal/query"
)

// Media types the service produces.
const (
	ContentTypeJSON = "application/json"
	ContentTypeHAL  = "application/hal+json"
)

// Response headers
const (
	HeaderContentType = "Content-Type"
	HeaderETag        = "ETag"
	HeaderIfNoneMatch = "If-None-Match"
	HeaderIfMatch     = "If-Match"
	HeaderLocation    = "Location"
	HeaderAllow       = "Allow"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a short error code and a human readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FieldMessage is one resolved validation error.
type FieldMessage struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Link is a hypermedia link of a paged response.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// PagedResources is the body of a paged search.
type PagedResources struct {
	Content []interface{}      `json:"content"`
	Links   []Link             `json:"links"`
	Page    query.PageMetadata `json:"page"`
}

type halLink struct {
	Href string `json:"href"`
}

type halPagedResources struct {
	PagedResources
	HalLinks map[string]halLink `json:"_links"`
}

// Negotiate picks the media type for the response from the Accept header.
// It returns false when the client accepts neither JSON nor HAL.
func Negotiate(r *http.Request) (string, bool) {
	accept := strings.TrimSpace(r.Header.Get("Accept"))
	if accept == "" {
		return ContentTypeJSON, true
	}

	type candidate struct {
		mediaType string
		q         float64
	}

	var candidates []candidate
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if raw, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}
		candidates = append(candidates, candidate{mediaType: mediaType, q: q})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].q > candidates[j].q
	})

	for _, c := range candidates {
		switch c.mediaType {
		case ContentTypeHAL:
			return ContentTypeHAL, true
		case ContentTypeJSON, "application/*", "*/*":
			return ContentTypeJSON, true
		}
	}
	return "", false
}

// WriteError writes an error body. HEAD requests get the status only.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) error {
	return writeJSON(w, r, status, ContentTypeJSON, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// WriteValidationErrors writes 400 with every resolved field error.
func WriteValidationErrors(w http.ResponseWriter, r *http.Request, fieldErrors []FieldMessage) error {
	if fieldErrors == nil {
		fieldErrors = []FieldMessage{}
	}
	return writeJSON(w, r, http.StatusBadRequest, ContentTypeJSON, map[string][]FieldMessage{"errors": fieldErrors})
}

// EntityTag returns the ETag of an entity. It is computed over the plain JSON form
// so the tag is the same for every media type.
func EntityTag(entity interface{}) (string, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return "", fmt.Errorf("failed to encode entity: %w", err)
	}
	return etag.Generate(raw), nil
}

// WriteEntity writes a single entity with an ETag. A GET or HEAD whose If-None-Match
// lists the current tag is answered with 304. HAL responses carry a self link.
func WriteEntity(w http.ResponseWriter, r *http.Request, status int, mediaType string, entity interface{}, selfHref string) error {
	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to encode entity: %w", err)
	}
	tag := etag.Generate(body)

	if mediaType == ContentTypeHAL {
		body, err = addHalSelfLink(body, selfHref)
		if err != nil {
			return err
		}
	}

	w.Header().Set(HeaderETag, tag)

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && !etag.NoneMatch(r.Header.Get(HeaderIfNoneMatch), tag) {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	return writeBody(w, r, status, mediaType, body)
}

// WritePage writes a paged search result. Links point at the same request with the page replaced.
func WritePage(w http.ResponseWriter, r *http.Request, mediaType string, page *query.Page) error {
	content := page.Content
	if content == nil {
		content = []interface{}{}
	}

	resources := PagedResources{
		Content: content,
		Links:   PageLinks(r, page),
		Page:    query.NewPageMetadata(page),
	}

	if mediaType != ContentTypeHAL {
		return writeJSON(w, r, http.StatusOK, mediaType, resources)
	}

	hal := halPagedResources{PagedResources: resources, HalLinks: make(map[string]halLink, len(resources.Links))}
	for _, link := range resources.Links {
		hal.HalLinks[link.Rel] = halLink{Href: link.Href}
	}
	return writeJSON(w, r, http.StatusOK, mediaType, hal)
}

// PageLinks builds self, next and prev links for a page.
func PageLinks(r *http.Request, page *query.Page) []Link {
	if page == nil {
		return []Link{}
	}
	links := []Link{{Rel: "self", Href: BuildPageLink(r, page.Number+1)}}
	if page.HasNext() {
		links = append(links, Link{Rel: "next", Href: BuildPageLink(r, page.Number+2)})
	}
	if page.HasPrevious() {
		links = append(links, Link{Rel: "prev", Href: BuildPageLink(r, page.Number)})
	}
	return links
}

// BuildBaseURL returns scheme://host of the request, honouring X-Forwarded-Proto.
func BuildBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host
}

// BuildPageLink returns the request URL with the one-based page parameter replaced.
func BuildPageLink(r *http.Request, pageNumber int) string {
	values := r.URL.Query()
	values.Set(query.ParamPage, strconv.Itoa(pageNumber))
	return BuildBaseURL(r) + r.URL.EscapedPath() + "?" + values.Encode()
}

// BuildEntityLink returns the absolute URL of an entity below a collection path.
func BuildEntityLink(r *http.Request, collectionPath string, key interface{}) string {
	return BuildBaseURL(r) + strings.TrimSuffix(collectionPath, "/") + "/" + url.PathEscape(fmt.Sprint(key))
}

func addHalSelfLink(raw []byte, selfHref string) ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("entity does not encode as a JSON object: %w", err)
	}
	links, err := json.Marshal(map[string]halLink{"self": {Href: selfHref}})
	if err != nil {
		return nil, err
	}
	fields["_links"] = links
	return json.Marshal(fields)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, mediaType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return writeBody(w, r, status, mediaType, body)
}

func writeBody(w http.ResponseWriter, r *http.Request, status int, mediaType string, body []byte) error {
	w.Header().Set(HeaderContentType, mediaType)
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		return nil
	}
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}
