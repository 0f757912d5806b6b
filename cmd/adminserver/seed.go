package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newSeedCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo customers and orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg.Database)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(&Customer{}, &Order{}); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			customers, orders, err := seed(cmd.Context(), db, reset)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d customers and %d orders\n", customers, orders)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing rows first")
	return cmd
}

func seedCustomers() []Customer {
	return []Customer{
		{Name: "Ada Lovelace", Email: "ada@example.com", City: "London", Active: true},
		{Name: "Alan Turing", Email: "alan@example.com", City: "Manchester", Active: true},
		{Name: "Grace Hopper", Email: "grace@example.com", City: "Arlington", Active: false},
		{Name: "Edsger Dijkstra", Email: "edsger@example.com", City: "Amsterdam", Active: true},
		{Name: "Barbara Liskov", Email: "barbara@example.com", City: "Boston", Active: true},
	}
}

// seed inserts the demo rows in one transaction and returns the number of customers and orders.
func seed(ctx context.Context, db *gorm.DB, reset bool) (int, int, error) {
	customers := seedCustomers()
	var orders []Order

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if reset {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Order{}).Error; err != nil {
				return err
			}
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Customer{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&customers).Error; err != nil {
			return fmt.Errorf("insert customers: %w", err)
		}

		statuses := []string{"new", "processing", "shipped"}
		placed := time.Now().UTC().Truncate(time.Second)
		for i, customer := range customers {
			for j := 0; j <= i%3; j++ {
				orders = append(orders, Order{
					ID:         uuid.New(),
					CustomerID: customer.ID,
					Status:     statuses[(i+j)%len(statuses)],
					Total:      decimal.NewFromInt(int64(120*(i+1) + 45*j)).Add(decimal.New(99, -2)),
					PlacedAt:   placed.Add(-time.Duration(i*24+j) * time.Hour),
				})
			}
		}
		if err := tx.Create(&orders).Error; err != nil {
			return fmt.Errorf("insert orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(customers), len(orders), nil
}
