package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/Agronaut41/admin-cc/internal/models"
)

func TestReplaceCacambaImageURL(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for _, c := range []*models.Cacamba{
		{ID: "c1", Numero: "10", Tipo: "entrega", ImageURL: "/files/old"},
		{ID: "c2", Numero: "11", Tipo: "retirada", ImageURL: "/files/old"},
		{ID: "c3", Numero: "12", Tipo: "entrega", ImageURL: "/files/other"},
	} {
		if err := st.CreateCacamba(ctx, c); err != nil {
			t.Fatalf("create cacamba %s: %v", c.ID, err)
		}
	}

	count, err := st.CountCacambasWithImageURL(ctx, "/files/old")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 references, got %d", count)
	}

	n, err := st.ReplaceCacambaImageURL(ctx, "/files/old", "/files/new")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updated rows, got %d", n)
	}

	n, err = st.ReplaceCacambaImageURL(ctx, "/files/missing", "/files/new")
	if err != nil {
		t.Fatalf("replace with no matches: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 updated rows, got %d", n)
	}

	c3, err := st.GetCacamba(ctx, "c3")
	if err != nil || c3 == nil {
		t.Fatalf("get c3: %v", err)
	}
	if c3.ImageURL != "/files/other" {
		t.Fatalf("unrelated cacamba changed: %q", c3.ImageURL)
	}
}

func TestOrderImageURLsQueryAndOverwrite(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.CreateOrder(ctx, &models.Order{ID: "o1", ClientName: "Ana", ImageURLs: []string{"/files/a", "/files/b", "/files/a"}}); err != nil {
		t.Fatalf("create o1: %v", err)
	}
	if err := st.CreateOrder(ctx, &models.Order{ID: "o2", ClientName: "Beto", ImageURLs: []string{"/files/b"}}); err != nil {
		t.Fatalf("create o2: %v", err)
	}
	if err := st.CreateOrder(ctx, &models.Order{ID: "o3", ClientName: "Caio"}); err != nil {
		t.Fatalf("create o3: %v", err)
	}

	orders, err := st.ListOrdersWithImageURL(ctx, "/files/a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "o1" {
		t.Fatalf("expected only o1, got %#v", orders)
	}

	if err := st.SetOrderImageURLs(ctx, "o1", []string{"/files/z", "/files/b", "/files/z"}); err != nil {
		t.Fatalf("set urls: %v", err)
	}
	got, err := st.GetOrder(ctx, "o1")
	if err != nil || got == nil {
		t.Fatalf("get o1: %v", err)
	}
	want := []string{"/files/z", "/files/b", "/files/z"}
	if !reflect.DeepEqual(got.ImageURLs, want) {
		t.Fatalf("expected %v, got %v", want, got.ImageURLs)
	}

	if err := st.SetOrderImageURLs(ctx, "missing", nil); err == nil {
		t.Fatal("expected error for missing order")
	}

	empty, err := st.GetOrder(ctx, "o3")
	if err != nil || empty == nil {
		t.Fatalf("get o3: %v", err)
	}
	if empty.ImageURLs == nil || len(empty.ImageURLs) != 0 {
		t.Fatalf("expected empty array, got %#v", empty.ImageURLs)
	}
}
