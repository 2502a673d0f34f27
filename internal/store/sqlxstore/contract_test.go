package sqlxstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/event"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
	"github.com/jensholdgaard/consignment-pricing/internal/store/sqlxstore"
)

var (
	testNow      = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	testStatuses = []string{"in_stock", "in_stock_consignment"}
)

func seedInventory(t *testing.T, db *sqlx.DB, productID, size, price, status string) {
	t.Helper()
	_, err := db.Exec(db.Rebind(
		`INSERT INTO inventory (id, product_id, size, price, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), productID, size, decimal.RequireFromString(price), status, testNow)
	if err != nil {
		t.Fatalf("seeding inventory: %v", err)
	}
}

func seedListing(t *testing.T, repo store.ListingRepository, userID, productID, size, price string, createdAt time.Time, expiresAt *time.Time) *store.Listing {
	t.Helper()
	l := &store.Listing{
		ProductID: productID,
		Size:      size,
		Price:     decimal.RequireFromString(price),
		UserID:    userID,
		Status:    "in_stock_consignment",
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	if err := repo.Create(context.Background(), l); err != nil {
		t.Fatalf("seeding listing: %v", err)
	}
	return l
}

func testPriceView(t *testing.T, db *sqlx.DB) {
	clk := clock.NewMock(testNow)
	repos := sqlxstore.NewRepositories(db, clk)
	ctx := context.Background()

	expired := testNow.Add(-time.Hour)
	seedListing(t, repos.Listings, "user-x", "p1", "10", "7.00", testNow.Add(-2*time.Hour), nil)
	seedListing(t, repos.Listings, "user-y", "p1", "10", "8.00", testNow.Add(-3*time.Hour), nil)
	seedListing(t, repos.Listings, "user-z", "p1", "10", "5.00", testNow.Add(-4*time.Hour), &expired)
	seedInventory(t, db, "p1", "10", "7.50", "in_stock")
	seedInventory(t, db, "p1", "10", "6.00", "sold_out")

	tests := []struct {
		name      string
		filter    store.PoolFilter
		wantNil   bool
		wantPrice string
		wantOwner string
	}{
		{
			name:      "consignor including self",
			filter:    store.PoolFilter{ProductID: "p1", Size: "10", Statuses: testStatuses, Pool: store.ConsignorPool},
			wantPrice: "7",
			wantOwner: "user-x",
		},
		{
			name:      "consignor excluding self",
			filter:    store.PoolFilter{ProductID: "p1", Size: "10", Statuses: testStatuses, Pool: store.ConsignorPool, ExcludeOwner: "user-x"},
			wantPrice: "8",
			wantOwner: "user-y",
		},
		{
			name:      "eshop ignores ineligible status",
			filter:    store.PoolFilter{ProductID: "p1", Size: "10", Statuses: testStatuses, Pool: store.EshopPool},
			wantPrice: "7.5",
		},
		{
			name:    "no rows for other size",
			filter:  store.PoolFilter{ProductID: "p1", Size: "11", Statuses: testStatuses, Pool: store.ConsignorPool},
			wantNil: true,
		},
		{
			name:    "status allow-list excludes everything",
			filter:  store.PoolFilter{ProductID: "p1", Size: "10", Statuses: []string{"archived"}, Pool: store.EshopPool},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := repos.Prices.Lowest(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Lowest: %v", err)
			}
			if tt.wantNil {
				if row != nil {
					t.Fatalf("Lowest = %+v, want nil", row)
				}
				return
			}
			if row == nil {
				t.Fatal("Lowest returned nil")
			}
			if !row.FinalPrice.Equal(decimal.RequireFromString(tt.wantPrice)) {
				t.Errorf("FinalPrice = %s, want %s", row.FinalPrice, tt.wantPrice)
			}
			switch {
			case tt.wantOwner == "" && row.Owner != nil:
				t.Errorf("Owner = %q, want nil", *row.Owner)
			case tt.wantOwner != "" && (row.Owner == nil || *row.Owner != tt.wantOwner):
				t.Errorf("Owner = %v, want %q", row.Owner, tt.wantOwner)
			}
		})
	}
}

func testListingRepo(t *testing.T, db *sqlx.DB) {
	clk := clock.NewMock(testNow)
	repo := sqlxstore.NewListingRepo(db, clk)
	ctx := context.Background()

	expired := testNow.Add(-time.Minute)
	later := testNow.Add(time.Hour)
	first := seedListing(t, repo, "user-a", "p2", "9", "120.00", testNow.Add(-2*time.Hour), nil)
	second := seedListing(t, repo, "user-b", "p2", "9", "120.00", testNow.Add(-time.Hour), &later)
	seedListing(t, repo, "user-c", "p2", "9", "120.00", testNow.Add(-3*time.Hour), &expired)

	if first.ID == "" {
		t.Fatal("expected ID to be set after Create")
	}

	got, err := repo.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.UserID != "user-b" || !got.Price.Equal(decimal.NewFromInt(120)) {
		t.Errorf("GetByID = %+v", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(later) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, later)
	}

	earliest, err := repo.EarliestActiveAt(ctx, "p2", "9", decimal.RequireFromString("120"))
	if err != nil {
		t.Fatalf("EarliestActiveAt: %v", err)
	}
	if earliest == nil || earliest.ID != first.ID {
		t.Errorf("EarliestActiveAt = %+v, want listing %s (expired one skipped)", earliest, first.ID)
	}

	none, err := repo.EarliestActiveAt(ctx, "p2", "9", decimal.RequireFromString("119.99"))
	if err != nil {
		t.Fatalf("EarliestActiveAt: %v", err)
	}
	if none != nil {
		t.Errorf("EarliestActiveAt at other price = %+v, want nil", none)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("ListActive returned %d, want 2", len(active))
	}

	mine, err := repo.ListByUser(ctx, "user-c")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(mine) != 0 {
		t.Errorf("ListByUser(expired only) returned %d, want 0", len(mine))
	}

	if err := repo.Delete(ctx, first.ID, "user-b"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete by non-owner error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, first.ID, "user-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID after delete error = %v, want ErrNotFound", err)
	}
}

func testEventStore(t *testing.T, db *sqlx.DB) {
	es := sqlxstore.NewEventStore(db, clock.NewMock(testNow))
	ctx := context.Background()

	aggID := "listing-001"
	if err := es.Append(ctx,
		event.Event{AggregateID: aggID, Type: event.ListingCreated, Data: json.RawMessage(`{"user_id":"u1"}`)},
		event.Event{AggregateID: aggID, Type: event.ListingBadgeChanged, Data: json.RawMessage(`{"to":"lowest"}`)},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := es.Append(ctx, event.Event{AggregateID: "listing-002", Type: event.ListingCreated, Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := es.Load(ctx, aggID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(loaded))
	}
	if loaded[0].Version != 1 || loaded[1].Version != 2 {
		t.Errorf("versions = [%d, %d], want [1, 2]", loaded[0].Version, loaded[1].Version)
	}
	var data map[string]string
	if err := json.Unmarshal(loaded[1].Data, &data); err != nil {
		t.Fatalf("decoding event data: %v", err)
	}
	if data["to"] != "lowest" {
		t.Errorf("event data = %v, want to=lowest", data)
	}

	created, err := es.LoadByType(ctx, event.ListingCreated)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(created) != 2 {
		t.Errorf("LoadByType(ListingCreated) returned %d, want 2", len(created))
	}

	// Explicit duplicate version must be rejected.
	dup := event.Event{AggregateID: aggID, Type: event.ListingDeleted, Data: json.RawMessage(`{}`), Version: 1}
	if err := es.Append(ctx, dup); err == nil {
		t.Error("expected error for duplicate aggregate_id + version")
	}
}
