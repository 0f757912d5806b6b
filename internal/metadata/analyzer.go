package metadata

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/nlstn/go-adminrest/internal/conv"
	"gorm.io/gorm/schema"
)

// namer computes table and column names the same way GORM does by default.
var namer = schema.NamingStrategy{}

// EntityMetadata holds metadata information about an administered entity
type EntityMetadata struct {
	EntityType     reflect.Type
	EntityName     string
	RepositoryName string // Name used in URLs (/rest/{RepositoryName}/...)
	TableName      string // Database table name (computed once, respects custom TableName() methods)
	Properties     []PropertyMetadata
	KeyProperty    *PropertyMetadata
	// DefaultPageSize overrides the service page size for this entity when non-zero
	DefaultPageSize int
	// Hooks defines which lifecycle hooks are available on this entity
	Hooks struct {
		HasAdminBeforeSave   bool
		HasAdminAfterSave    bool
		HasAdminBeforeDelete bool
		HasAdminAfterDelete  bool
		HasValidate          bool
	}
}

// PropertyMetadata holds metadata information about an entity property
type PropertyMetadata struct {
	Name       string
	Type       reflect.Type
	FieldName  string
	FieldIndex []int  // Index path for reflect.Value.FieldByIndex (embedded structs are flattened)
	ColumnName string // Database column name (respects gorm:"column:..." tags)
	JsonName   string
	IsKey      bool
	IsRequired bool
	MaxLength  int
	// IsFilterable is false for properties that cannot be matched against request parameters
	IsFilterable bool
	// IsTransient marks properties without a database column (relations, json:"-" fields, admin:"-")
	IsTransient bool
}

// AnalyzeEntity extracts metadata from a Go struct for administration usage
func AnalyzeEntity(entity interface{}) (*EntityMetadata, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}

	entityType := reflect.TypeOf(entity)

	// Handle pointer types
	if entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
	}

	if entityType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a struct, got %s", entityType.Kind())
	}

	metadata := initializeMetadata(entityType)

	if err := analyzeFields(entityType, nil, metadata); err != nil {
		return nil, err
	}

	keyIndex := -1
	for i := range metadata.Properties {
		if !metadata.Properties[i].IsKey {
			continue
		}
		if keyIndex >= 0 {
			return nil, fmt.Errorf("entity %s declares more than one key property (%s, %s); composite keys are not supported",
				metadata.EntityName, metadata.Properties[keyIndex].Name, metadata.Properties[i].Name)
		}
		keyIndex = i
	}

	// Fall back to a field named ID when nothing was tagged
	if keyIndex < 0 {
		for i := range metadata.Properties {
			if metadata.Properties[i].Name == "ID" {
				metadata.Properties[i].IsKey = true
				keyIndex = i
				break
			}
		}
	}

	if keyIndex < 0 {
		return nil, fmt.Errorf("entity %s must have a key property (use `admin:\"key\"`, `gorm:\"primaryKey\"` or name a field 'ID')", metadata.EntityName)
	}

	key := &metadata.Properties[keyIndex]
	if !conv.Supported(key.Type) {
		return nil, fmt.Errorf("key property %s of entity %s has unsupported type %s", key.Name, metadata.EntityName, key.Type)
	}
	metadata.KeyProperty = key

	// Detect available lifecycle hooks
	if err := detectHooks(metadata); err != nil {
		return nil, err
	}

	return metadata, nil
}

func initializeMetadata(entityType reflect.Type) *EntityMetadata {
	entityName := entityType.Name()

	return &EntityMetadata{
		EntityType:     entityType,
		EntityName:     entityName,
		RepositoryName: DefaultRepositoryName(entityName),
		TableName:      getTableNameFromReflectType(entityType),
		Properties:     make([]PropertyMetadata, 0),
	}
}

// analyzeFields walks the exported fields of a struct type, flattening
// anonymous embedded structs such as gorm.Model.
func analyzeFields(structType reflect.Type, parentIndex []int, metadata *EntityMetadata) error {
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		index := append(append([]int(nil), parentIndex...), i)

		if field.Anonymous && dereferenceType(field.Type).Kind() == reflect.Struct && !conv.Supported(field.Type) {
			if err := analyzeFields(dereferenceType(field.Type), index, metadata); err != nil {
				return err
			}
			continue
		}

		property, err := analyzeField(field, index)
		if err != nil {
			return fmt.Errorf("error analyzing field %s: %w", field.Name, err)
		}
		if existing := metadata.FindProperty(property.JsonName); existing != nil {
			return fmt.Errorf("property name '%s' is used by both %s and %s", property.JsonName, existing.FieldName, property.FieldName)
		}
		metadata.Properties = append(metadata.Properties, property)
	}
	return nil
}

func analyzeField(field reflect.StructField, index []int) (PropertyMetadata, error) {
	property := PropertyMetadata{
		Name:       field.Name,
		Type:       field.Type,
		FieldName:  field.Name,
		FieldIndex: index,
		JsonName:   getJsonName(field),
	}

	gormSettings := schema.ParseTagSetting(field.Tag.Get("gorm"), ";")
	if _, ok := gormSettings["PRIMARYKEY"]; ok {
		property.IsKey = true
	}
	if _, ok := gormSettings["PRIMARY_KEY"]; ok {
		property.IsKey = true
	}
	if _, ok := gormSettings["NOT NULL"]; ok {
		property.IsRequired = true
	}
	if _, ok := gormSettings["NOTNULL"]; ok {
		property.IsRequired = true
	}
	if gormSettings["-"] == "-" || field.Tag.Get("json") == "-" {
		property.IsTransient = true
	}

	if column, ok := gormSettings["COLUMN"]; ok && column != "" {
		property.ColumnName = column
	} else {
		property.ColumnName = namer.ColumnName("", field.Name)
	}

	// Relations and arbitrary structs are carried in responses but never matched against parameters
	if !conv.Supported(field.Type) {
		property.IsTransient = property.IsTransient || isRelation(field.Type)
	} else {
		property.IsFilterable = !property.IsTransient
	}

	if err := analyzeAdminTags(&property, field); err != nil {
		return property, err
	}

	return property, nil
}

// analyzeAdminTags processes the comma-separated admin:"..." tag
func analyzeAdminTags(property *PropertyMetadata, field reflect.StructField) error {
	adminTag := field.Tag.Get("admin")
	if adminTag == "" {
		return nil
	}

	for _, part := range strings.Split(adminTag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			continue
		case part == "key":
			property.IsKey = true
		case part == "required":
			property.IsRequired = true
		case part == "-":
			property.IsFilterable = false
		case strings.HasPrefix(part, "maxlength="):
			value, err := strconv.Atoi(strings.TrimPrefix(part, "maxlength="))
			if err != nil || value < 0 {
				return fmt.Errorf("invalid maxlength in admin tag: %s", part)
			}
			property.MaxLength = value
		case strings.HasPrefix(part, "name="):
			name := strings.TrimSpace(strings.TrimPrefix(part, "name="))
			if name == "" {
				return fmt.Errorf("empty name in admin tag")
			}
			property.JsonName = name
		default:
			return fmt.Errorf("unknown admin tag option '%s'", part)
		}
	}

	return nil
}

func getJsonName(field reflect.StructField) string {
	jsonTag := field.Tag.Get("json")
	if jsonTag == "" || jsonTag == "-" {
		return field.Name
	}

	// Handle json:",omitempty" or json:"fieldname,omitempty"
	parts := strings.Split(jsonTag, ",")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}

	return field.Name
}

// DefaultRepositoryName lower-cases the first rune of the entity name (OrderLine -> orderLine).
func DefaultRepositoryName(entityName string) string {
	if entityName == "" {
		return entityName
	}
	runes := []rune(entityName)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	requestType = reflect.TypeOf((*http.Request)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

var lifecycleHooks = []string{"AdminBeforeSave", "AdminAfterSave", "AdminBeforeDelete", "AdminAfterDelete"}

// detectHooks records the lifecycle hooks of the entity. A hook method must have the
// signature func(context.Context, *http.Request) error; any other signature is an error.
// A Validate method counts only with the signature func(context.Context) error.
func detectHooks(metadata *EntityMetadata) error {
	// The pointer method set includes the value receiver methods
	ptrType := reflect.PointerTo(metadata.EntityType)

	for _, name := range lifecycleHooks {
		found, valid := hasMethod(ptrType, name, contextType, requestType)
		if !found {
			continue
		}
		if !valid {
			return fmt.Errorf("hook %s.%s must have the signature func(context.Context, *http.Request) error", metadata.EntityName, name)
		}
		switch name {
		case "AdminBeforeSave":
			metadata.Hooks.HasAdminBeforeSave = true
		case "AdminAfterSave":
			metadata.Hooks.HasAdminAfterSave = true
		case "AdminBeforeDelete":
			metadata.Hooks.HasAdminBeforeDelete = true
		case "AdminAfterDelete":
			metadata.Hooks.HasAdminAfterDelete = true
		}
	}

	_, metadata.Hooks.HasValidate = hasMethod(ptrType, "Validate", contextType)
	return nil
}

// hasMethod reports whether t has the named method and whether it takes exactly params
// and returns a single error.
func hasMethod(t reflect.Type, methodName string, params ...reflect.Type) (found, valid bool) {
	method, ok := t.MethodByName(methodName)
	if !ok {
		return false, false
	}
	// In(0) is the receiver
	mt := method.Type
	if mt.NumIn() != len(params)+1 || mt.NumOut() != 1 || mt.Out(0) != errorType {
		return true, false
	}
	for i, param := range params {
		if mt.In(i+1) != param {
			return true, false
		}
	}
	return true, true
}

// FindProperty resolves a property by JSON name or Go field name, then case-insensitively.
func (metadata *EntityMetadata) FindProperty(name string) *PropertyMetadata {
	if metadata == nil || name == "" {
		return nil
	}

	for i := range metadata.Properties {
		prop := &metadata.Properties[i]
		if prop.Name == name || prop.JsonName == name {
			return prop
		}
	}

	for i := range metadata.Properties {
		prop := &metadata.Properties[i]
		if strings.EqualFold(prop.Name, name) || strings.EqualFold(prop.JsonName, name) {
			return prop
		}
	}

	return nil
}

// NewEntity allocates a zero entity and returns a pointer to it.
func (metadata *EntityMetadata) NewEntity() interface{} {
	return reflect.New(metadata.EntityType).Interface()
}

// NewSlice allocates a pointer to an empty slice of entities.
func (metadata *EntityMetadata) NewSlice() interface{} {
	return reflect.New(reflect.SliceOf(metadata.EntityType)).Interface()
}

// FieldValue returns the value of a property on an entity (struct or pointer to struct).
func (metadata *EntityMetadata) FieldValue(entity interface{}, property *PropertyMetadata) (reflect.Value, bool) {
	if entity == nil || property == nil {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct || v.Type() != metadata.EntityType {
		return reflect.Value{}, false
	}
	field, err := v.FieldByIndexErr(property.FieldIndex)
	if err != nil {
		return reflect.Value{}, false
	}
	return field, true
}

// KeyValue returns the key of an entity.
func (metadata *EntityMetadata) KeyValue(entity interface{}) (interface{}, bool) {
	field, ok := metadata.FieldValue(entity, metadata.KeyProperty)
	if !ok {
		return nil, false
	}
	return field.Interface(), true
}

// SetKeyValue writes key into the key field of a pointer to an entity.
func (metadata *EntityMetadata) SetKeyValue(entity interface{}, key interface{}) error {
	field, ok := metadata.FieldValue(entity, metadata.KeyProperty)
	if !ok {
		return fmt.Errorf("entity is not a %s", metadata.EntityName)
	}
	if !field.CanSet() {
		return fmt.Errorf("key field %s of %s is not settable", metadata.KeyProperty.FieldName, metadata.EntityName)
	}
	value := reflect.ValueOf(key)
	if !value.IsValid() {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if !value.Type().AssignableTo(field.Type()) {
		if !value.Type().ConvertibleTo(field.Type()) {
			return fmt.Errorf("cannot assign %s to key field %s", value.Type(), metadata.KeyProperty.FieldName)
		}
		value = value.Convert(field.Type())
	}
	field.Set(value)
	return nil
}

// ColumnProperties returns the properties backed by a database column, in declaration order.
func (metadata *EntityMetadata) ColumnProperties() []*PropertyMetadata {
	props := make([]*PropertyMetadata, 0, len(metadata.Properties))
	for i := range metadata.Properties {
		if metadata.Properties[i].IsTransient {
			continue
		}
		props = append(props, &metadata.Properties[i])
	}
	return props
}

func dereferenceType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// isRelation reports whether a field type refers to other entities.
func isRelation(t reflect.Type) bool {
	t = dereferenceType(t)
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		elem := dereferenceType(t.Elem())
		return elem.Kind() == reflect.Struct
	case reflect.Struct:
		return !conv.Supported(t) && !implementsValuer(t)
	}
	return false
}

// implementsValuer reports whether t stores itself in a single column (sql.NullString, gorm.DeletedAt, ...).
func implementsValuer(t reflect.Type) bool {
	hasValue, _ := hasMethod(t, "Value")
	hasScan, _ := hasMethod(reflect.PointerTo(t), "Scan")
	return hasValue || hasScan
}

func getTableNameFromReflectType(entityType reflect.Type) string {
	value := reflect.New(entityType).Interface()
	if tabler, ok := value.(schema.Tabler); ok {
		return tabler.TableName()
	}
	return namer.TableName(entityType.Name())
}
