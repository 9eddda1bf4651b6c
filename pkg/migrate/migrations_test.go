package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/j1myx/kiwishaproject/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}

func TestOrdersMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "*_create_orders_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS order_lines",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_code",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created",
		"'pending', 'confirmed', 'shipped', 'delivered', 'cancelled'",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCatalogMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "*_create_catalog_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE TABLE IF NOT EXISTS stock_items",
		"CHECK (available_qty >= 0)",
		"CREATE TABLE IF NOT EXISTS shipping_methods",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCartMigrationEnforcesOneLinePerProduct(t *testing.T) {
	content := readMigration(t, "*_create_cart_items_table.sql")

	if !strings.Contains(content, "idx_cart_session_product") {
		t.Errorf("missing unique session/product index")
	}
	if !strings.Contains(content, "CHECK (quantity >= 1)") {
		t.Errorf("missing quantity floor check")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
