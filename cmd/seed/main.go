// Seeds a handful of demo profiles and listings for local development.
package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/loopmarket/backend/internal/config"
	"github.com/loopmarket/backend/internal/db"
	"github.com/loopmarket/backend/internal/model"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	if err := conn.AutoMigrate(&model.Profile{}, &model.Listing{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	profiles := []model.Profile{
		{UID: "seed-alice", DisplayName: "Alice", Email: "alice@example.com"},
		{UID: "seed-bob", DisplayName: "Bob", Email: "bob@example.com"},
	}
	for i := range profiles {
		if err := conn.FirstOrCreate(&profiles[i], model.Profile{UID: profiles[i].UID}).Error; err != nil {
			log.Fatalf("seed profile %s: %v", profiles[i].UID, err)
		}
	}

	listings := []model.Listing{
		{SellerUID: "seed-alice", Title: "Road bike", Description: "Aluminium frame, recently serviced.", Price: 24000, Category: "sports"},
		{SellerUID: "seed-alice", Title: "Bookshelf", Description: "Solid pine, five shelves.", Price: 4500, Category: "furniture"},
		{SellerUID: "seed-bob", Title: "Mirrorless camera", Description: "Body only, low shutter count.", Price: 52000, Category: "electronics"},
	}
	for i := range listings {
		var existing model.Listing
		err := conn.Where("seller_uid = ? AND title = ?", listings[i].SellerUID, listings[i].Title).First(&existing).Error
		if err == nil {
			continue
		}
		if err := conn.Create(&listings[i]).Error; err != nil {
			log.Fatalf("seed listing %q: %v", listings[i].Title, err)
		}
	}

	log.Printf("seeded %d profiles, %d listings", len(profiles), len(listings))
}
