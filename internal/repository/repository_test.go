package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/nlstn/go-adminrest/internal/metadata"
	"github.com/nlstn/go-adminrest/internal/query"
	"github.com/nlstn/go-adminrest/internal/scope"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Widget struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Weight int    `json:"weight"`
	Active bool   `json:"active"`
}

func setupRepositories(t *testing.T) (*metadata.EntityMetadata, map[string]Repository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&Widget{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// Every repository must see the same in-memory database
	sqlDB.SetMaxIdleConns(1)

	meta, err := metadata.AnalyzeEntity(Widget{})
	if err != nil {
		t.Fatalf("AnalyzeEntity failed: %v", err)
	}

	return meta, map[string]Repository{
		"gorm": NewGormRepository(db, meta),
		"sql":  NewSQLRepository(sqlDB, "sqlite", meta),
	}
}

func seedWidgets(t *testing.T, repo Repository) {
	t.Helper()
	widgets := []Widget{
		{Name: "Anvil", Color: "black", Weight: 50, Active: true},
		{Name: "Bolt", Color: "silver", Weight: 1, Active: true},
		{Name: "Cog", Color: "black", Weight: 3},
		{Name: "Drum", Color: "red", Weight: 12, Active: true},
		{Name: "Eyelet", Color: "silver", Weight: 1},
	}
	for i := range widgets {
		if err := repo.Save(context.Background(), &widgets[i]); err != nil {
			t.Fatalf("Save(%s) failed: %v", widgets[i].Name, err)
		}
		if widgets[i].ID == 0 {
			t.Fatalf("Save(%s) did not write back the generated key", widgets[i].Name)
		}
	}
}

func forEachRepository(t *testing.T, fn func(t *testing.T, meta *metadata.EntityMetadata, repo Repository)) {
	for _, name := range []string{"gorm", "sql"} {
		t.Run(name, func(t *testing.T) {
			meta, repos := setupRepositories(t)
			repo := repos[name]
			seedWidgets(t, repo)
			fn(t, meta, repo)
		})
	}
}

func TestRepositoryFindOne(t *testing.T) {
	forEachRepository(t, func(t *testing.T, meta *metadata.EntityMetadata, repo Repository) {
		ctx := context.Background()

		entity, err := repo.FindOne(ctx, uint(2))
		if err != nil {
			t.Fatalf("FindOne failed: %v", err)
		}
		widget, ok := entity.(*Widget)
		if !ok {
			t.Fatalf("FindOne returned %T, want *Widget", entity)
		}
		if widget.Name != "Bolt" || widget.Color != "silver" || widget.Weight != 1 || !widget.Active {
			t.Errorf("FindOne = %+v", widget)
		}

		if _, err := repo.FindOne(ctx, uint(99)); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindOne(99) error = %v, want ErrNotFound", err)
		}
	})
}

func TestRepositoryFindAll(t *testing.T) {
	forEachRepository(t, func(t *testing.T, meta *metadata.EntityMetadata, repo Repository) {
		ctx := context.Background()

		page, err := repo.FindAll(ctx, nil, query.PageRequest{Page: 1, Size: 2})
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if page.TotalElements != 5 || page.TotalPages() != 3 || len(page.Content) != 2 {
			t.Fatalf("page = %+v", page)
		}
		if first := page.Content[0].(*Widget); first.Name != "Cog" {
			t.Errorf("unsorted page should follow key order, got %s", first.Name)
		}

		spec := scope.Specification{{Condition: "color = ?", Args: []interface{}{"silver"}}}
		sorted := query.Sort{Orders: []query.Order{{Column: "name", Descending: true}}}
		page, err = repo.FindAll(ctx, spec, query.PageRequest{Size: 10, Sort: sorted})
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if page.TotalElements != 2 || len(page.Content) != 2 {
			t.Fatalf("filtered page = %+v", page)
		}
		if first := page.Content[0].(*Widget); first.Name != "Eyelet" {
			t.Errorf("first = %s, want Eyelet", first.Name)
		}

		page, err = repo.FindAll(ctx, spec, query.PageRequest{Page: 5, Size: 10})
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if page.HasContent() || page.TotalElements != 2 {
			t.Errorf("page past the end = %+v", page)
		}
	})
}

func TestRepositoryFindAllSorted(t *testing.T) {
	forEachRepository(t, func(t *testing.T, meta *metadata.EntityMetadata, repo Repository) {
		spec := scope.Specification{{Condition: "weight < ?", Args: []interface{}{10}}}
		sort := query.Sort{Orders: []query.Order{{Column: "weight", Descending: true}, {Column: "name"}}}

		items, err := repo.FindAllSorted(context.Background(), spec, sort)
		if err != nil {
			t.Fatalf("FindAllSorted failed: %v", err)
		}
		var names []string
		for _, item := range items {
			names = append(names, item.(*Widget).Name)
		}
		want := []string{"Cog", "Bolt", "Eyelet"}
		if len(names) != len(want) {
			t.Fatalf("names = %v, want %v", names, want)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Fatalf("names = %v, want %v", names, want)
			}
		}
	})
}

func TestRepositorySave(t *testing.T) {
	forEachRepository(t, func(t *testing.T, meta *metadata.EntityMetadata, repo Repository) {
		ctx := context.Background()

		updated := &Widget{ID: 3, Name: "Cog", Color: "gold", Weight: 4, Active: true}
		if err := repo.Save(ctx, updated); err != nil {
			t.Fatalf("Save (update) failed: %v", err)
		}
		entity, err := repo.FindOne(ctx, uint(3))
		if err != nil {
			t.Fatalf("FindOne failed: %v", err)
		}
		if got := entity.(*Widget); got.Color != "gold" || got.Weight != 4 || !got.Active {
			t.Errorf("updated = %+v", got)
		}

		explicit := &Widget{ID: 42, Name: "Flange", Color: "blue"}
		if err := repo.Save(ctx, explicit); err != nil {
			t.Fatalf("Save (explicit key) failed: %v", err)
		}
		exists, err := repo.Exists(ctx, uint(42))
		if err != nil || !exists {
			t.Errorf("Exists(42) = %v, %v", exists, err)
		}

		page, err := repo.FindAll(ctx, nil, query.PageRequest{Size: 10})
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if page.TotalElements != 6 {
			t.Errorf("TotalElements = %d, want 6", page.TotalElements)
		}
	})
}

func TestRepositoryDelete(t *testing.T) {
	forEachRepository(t, func(t *testing.T, meta *metadata.EntityMetadata, repo Repository) {
		ctx := context.Background()

		if err := repo.Delete(ctx, uint(1)); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if exists, _ := repo.Exists(ctx, uint(1)); exists {
			t.Error("entity 1 still exists after Delete")
		}
		if err := repo.Delete(ctx, uint(1)); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete error = %v, want ErrNotFound", err)
		}
	})
}

func TestRepositoryTransaction(t *testing.T) {
	forEachRepository(t, func(t *testing.T, meta *metadata.EntityMetadata, repo Repository) {
		ctx := context.Background()
		errAbort := errors.New("abort")

		err := repo.Transaction(ctx, func(txCtx context.Context) error {
			if _, ok := SQLTransactionFromContext(txCtx); !ok {
				t.Error("transaction not available from context")
			}
			if err := repo.Save(txCtx, &Widget{Name: "Ghost"}); err != nil {
				return err
			}
			if err := repo.Delete(txCtx, uint(2)); err != nil {
				return err
			}
			return errAbort
		})
		if !errors.Is(err, errAbort) {
			t.Fatalf("Transaction error = %v, want errAbort", err)
		}

		page, err := repo.FindAll(ctx, nil, query.PageRequest{Size: 10})
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if page.TotalElements != 5 {
			t.Errorf("TotalElements = %d after rollback, want 5", page.TotalElements)
		}

		err = repo.Transaction(ctx, func(txCtx context.Context) error {
			return repo.Delete(txCtx, uint(2))
		})
		if err != nil {
			t.Fatalf("Transaction failed: %v", err)
		}
		if exists, _ := repo.Exists(ctx, uint(2)); exists {
			t.Error("committed delete not visible")
		}
	})
}

func TestContextHelpers(t *testing.T) {
	if _, ok := GormTransactionFromContext(context.Background()); ok {
		t.Error("empty context should carry no GORM transaction")
	}
	if _, ok := SQLTransactionFromContext(context.Background()); ok {
		t.Error("empty context should carry no SQL transaction")
	}
}
