package query

import (
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/nlstn/go-adminrest/internal/metadata"
)

// Request parameters consumed by paging and sorting. They are never treated as filters.
const (
	ParamPage    = "page"
	ParamLimit   = "limit"
	ParamSize    = "size"
	ParamSort    = "sort"
	ParamSortDir = "sort.dir"
)

const (
	// DefaultPageSize is used when neither the request nor the entity configure a page size.
	DefaultPageSize = 10
	// DefaultMaxPageSize caps the page size a client may request.
	DefaultMaxPageSize = 1000
)

// IsPagingParameter reports whether name is reserved for paging and sorting.
func IsPagingParameter(name string) bool {
	switch name {
	case ParamPage, ParamLimit, ParamSize, ParamSort, ParamSortDir:
		return true
	}
	return strings.HasSuffix(name, ".dir")
}

// Order is one sort criterion.
type Order struct {
	Property   string
	Column     string
	Descending bool
}

// Sort is an ordered list of sort criteria.
type Sort struct {
	Orders []Order
}

// IsSorted reports whether any criteria were requested.
func (s Sort) IsSorted() bool {
	return len(s.Orders) > 0
}

// PageRequest describes the slice of a collection a client asked for.
// Page is zero-based; the wire format is one-based.
type PageRequest struct {
	Page int
	Size int
	Sort Sort
}

// Offset is the index of the first item of the page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// PagingConfig bounds page sizes.
type PagingConfig struct {
	DefaultSize int
	MaxSize     int
}

func (c PagingConfig) normalized() PagingConfig {
	if c.DefaultSize <= 0 {
		c.DefaultSize = DefaultPageSize
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxPageSize
	}
	if c.DefaultSize > c.MaxSize {
		c.DefaultSize = c.MaxSize
	}
	return c
}

// ParsePageRequest reads page, limit/size and sort parameters.
func ParsePageRequest(values url.Values, meta *metadata.EntityMetadata, cfg PagingConfig) (PageRequest, error) {
	cfg = cfg.normalized()

	pageRequest := PageRequest{Size: cfg.DefaultSize}
	if meta != nil && meta.DefaultPageSize > 0 {
		pageRequest.Size = meta.DefaultPageSize
		if pageRequest.Size > cfg.MaxSize {
			pageRequest.Size = cfg.MaxSize
		}
	}

	if raw := strings.TrimSpace(values.Get(ParamPage)); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return pageRequest, fmt.Errorf("%s must be a positive integer", ParamPage)
		}
		pageRequest.Page = page - 1
	}

	sizeParam := ParamLimit
	raw := strings.TrimSpace(values.Get(ParamLimit))
	if raw == "" {
		sizeParam = ParamSize
		raw = strings.TrimSpace(values.Get(ParamSize))
	}
	if raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return pageRequest, fmt.Errorf("%s must be a positive integer", sizeParam)
		}
		if size > cfg.MaxSize {
			size = cfg.MaxSize
		}
		pageRequest.Size = size
	}

	// Offset()+Size must stay representable.
	if pageRequest.Page > (math.MaxInt-pageRequest.Size)/pageRequest.Size {
		return pageRequest, fmt.Errorf("%s is out of range", ParamPage)
	}

	sort, err := ParseSort(values, meta)
	if err != nil {
		return pageRequest, err
	}
	pageRequest.Sort = sort

	return pageRequest, nil
}

// ParseSort reads sort=prop[,asc|desc] (repeatable) and the sort.dir default direction.
func ParseSort(values url.Values, meta *metadata.EntityMetadata) (Sort, error) {
	var sort Sort

	defaultDescending := false
	if dir := strings.TrimSpace(values.Get(ParamSortDir)); dir != "" {
		descending, err := parseDirection(dir)
		if err != nil {
			return sort, err
		}
		defaultDescending = descending
	}

	for _, raw := range values[ParamSort] {
		for _, item := range splitSortValue(raw) {
			parts := strings.Split(item, ",")
			name := strings.TrimSpace(parts[0])
			if name == "" {
				continue
			}

			prop := meta.FindProperty(name)
			if prop == nil || prop.IsTransient {
				return sort, fmt.Errorf("cannot sort by unknown property '%s'", name)
			}

			descending := defaultDescending
			if len(parts) > 1 {
				d, err := parseDirection(parts[1])
				if err != nil {
					return sort, err
				}
				descending = d
			} else if dir := propertyDirection(values, name, prop); dir != "" {
				d, err := parseDirection(dir)
				if err != nil {
					return sort, err
				}
				descending = d
			}

			sort.Orders = append(sort.Orders, Order{
				Property:   prop.JsonName,
				Column:     prop.ColumnName,
				Descending: descending,
			})
		}
	}

	return sort, nil
}

// propertyDirection reads <property>.dir, accepting the requested spelling or the JSON name.
func propertyDirection(values url.Values, name string, prop *metadata.PropertyMetadata) string {
	if dir := strings.TrimSpace(values.Get(name + ".dir")); dir != "" {
		return dir
	}
	return strings.TrimSpace(values.Get(prop.JsonName + ".dir"))
}

// splitSortValue separates "a,desc;b" style lists. Commas belong to a single criterion.
func splitSortValue(raw string) []string {
	items := strings.Split(raw, ";")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDirection(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "asc", "":
		return false, nil
	case "desc":
		return true, nil
	}
	return false, fmt.Errorf("sort direction must be 'asc' or 'desc', got '%s'", raw)
}

// Page is one page of a collection.
type Page struct {
	Content       []interface{}
	Number        int // zero-based
	Size          int
	TotalElements int64
}

// TotalPages is the number of pages of Size items needed for TotalElements.
func (p *Page) TotalPages() int {
	if p == nil || p.Size <= 0 {
		return 0
	}
	return int(math.Ceil(float64(p.TotalElements) / float64(p.Size)))
}

// HasContent reports whether the page carries any items.
func (p *Page) HasContent() bool {
	return p != nil && len(p.Content) > 0
}

// HasNext reports whether a later page exists.
func (p *Page) HasNext() bool {
	return p != nil && p.Number+1 < p.TotalPages()
}

// HasPrevious reports whether an earlier page exists.
func (p *Page) HasPrevious() bool {
	return p != nil && p.Number > 0
}

// NewPage builds a page for a request from already sliced content.
func NewPage(content []interface{}, request PageRequest, total int64) *Page {
	if content == nil {
		content = []interface{}{}
	}
	return &Page{
		Content:       content,
		Number:        request.Page,
		Size:          request.Size,
		TotalElements: total,
	}
}

// SelectPage cuts the requested page out of a fully loaded list.
// An offset past the end yields an empty page that still reports the total.
func SelectPage(items []interface{}, request PageRequest) *Page {
	total := len(items)
	start := request.Offset()
	if start > total || start < 0 {
		start = total
	}
	end := start + request.Size
	if end > total || request.Size <= 0 {
		end = total
	}
	return NewPage(append([]interface{}(nil), items[start:end]...), request, int64(total))
}

// PageMetadata is the paging block of a paged response. Number is one-based.
type PageMetadata struct {
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// NewPageMetadata derives response metadata from a page.
func NewPageMetadata(page *Page) PageMetadata {
	if page == nil {
		return PageMetadata{Number: 1}
	}
	return PageMetadata{
		Size:          page.Size,
		Number:        page.Number + 1,
		TotalElements: page.TotalElements,
		TotalPages:    page.TotalPages(),
	}
}

// ToSlice copies a slice value (or pointer to one) into []interface{} of element pointers.
func ToSlice(results interface{}) []interface{} {
	v := reflect.ValueOf(results)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return []interface{}{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice {
		return []interface{}{}
	}
	items := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		item := v.Index(i)
		if item.Kind() != reflect.Ptr && item.CanAddr() {
			items[i] = item.Addr().Interface()
			continue
		}
		items[i] = item.Interface()
	}
	return items
}
