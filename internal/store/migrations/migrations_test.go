package migrations_test

import (
	"context"
	"database/sql"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loopback-labs/e2e-agent/internal/store"
	"github.com/loopback-labs/e2e-agent/internal/store/migrations"
)

func TestMigrations(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Migrations Suite")
}

var _ = Describe("Migrations", func() {
	var (
		ctx context.Context
		db  *sql.DB
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	It("should create the run-history schema", func() {
		Expect(migrations.Run(ctx, db)).To(Succeed())

		for _, table := range []string{"runs", "suites"} {
			var name string
			err := db.QueryRowContext(ctx,
				`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal(table))
		}
	})

	It("should be idempotent", func() {
		Expect(migrations.Run(ctx, db)).To(Succeed())
		Expect(migrations.Run(ctx, db)).To(Succeed())

		_, err := db.ExecContext(ctx,
			`INSERT INTO runs (id, kind, started_at) VALUES ('r1', 'working-changes', '2026-03-01T00:00:00Z')`)
		Expect(err).NotTo(HaveOccurred())
	})
})
