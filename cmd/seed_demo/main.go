package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/config"
	"github.com/xelth-com/eckbackoffice/internal/database"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/clients"
	"github.com/xelth-com/eckbackoffice/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var roles = map[string][]string{
	"administrateur": access.AllPermissions,
	"gestionnaire": {
		access.ManagePendingClients,
		access.CreatePendingClients,
		access.ViewTiers,
		access.ManageTiers,
		access.ManageTraites,
	},
	"commercial": {
		access.CreatePendingClients,
		access.ViewTiers,
	},
}

func main() {
	fmt.Println("🌱 Back-office Demo Data Seeder")

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.Database, nil)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations first
	fmt.Println("🔨 Running database migrations...")
	if err := models.Migrate(db.DB); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	ctx := context.Background()

	// Roles
	roleIDs := map[string]uint{}
	for name, perms := range roles {
		role := models.Role{Name: name}
		if err := db.Where(models.Role{Name: name}).
			Assign(models.Role{Permissions: datatypes.JSONSlice[string](perms)}).
			FirstOrCreate(&role).Error; err != nil {
			log.Fatalf("❌ Failed to seed role %s: %v", name, err)
		}
		roleIDs[name] = role.ID
	}
	fmt.Printf("✅ %d roles ready\n", len(roleIDs))

	// Users
	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "changeme"
	}
	admin := seedUser(db.DB, "admin", "Administrateur", password, roleIDs["administrateur"])
	commercial := seedUser(db.DB, "commercial", "Commercial Démo", password, roleIDs["commercial"])
	fmt.Printf("✅ Users ready (admin id %d, commercial id %d)\n", admin.ID, commercial.ID)

	// Organization
	if err := db.Where(models.OrganizationSettings{}).
		FirstOrCreate(&models.OrganizationSettings{Name: "Back Office Démo", RequireRejectionReason: true}).Error; err != nil {
		log.Fatalf("❌ Failed to seed settings: %v", err)
	}

	// Pending clients
	var existing int64
	db.Model(&models.PendingClient{}).Count(&existing)
	if existing > 0 {
		fmt.Printf("⚠️  %d pending clients already present, skipping samples\n", existing)
		return
	}

	svc := clients.NewService(db.DB, nil, nil)
	actor := access.ActorFor(commercial)
	requested := time.Now().UTC().Truncate(24 * time.Hour)
	samples := []models.ClientDetails{
		{Name: "Boulangerie Martin", City: "Lyon", Country: "France", Email: "contact@boulangerie-martin.fr", Category: "Commerce", RequestDate: &requested},
		{Name: "Garage Dupont", City: "Marseille", Country: "France", Phone: "+33 4 91 00 00 00", Category: "Services", RequestDate: &requested},
		{Name: "Transports Leroy", City: "Lille", Country: "France", InvoicedAmount: 12500, Credit: 5000, RequestDate: &requested},
	}
	for _, details := range samples {
		client, err := svc.Create(ctx, actor, clients.Input{ClientDetails: details})
		if err != nil {
			log.Fatalf("❌ Failed to create %s: %v", details.Name, err)
		}
		fmt.Printf("   • %s (draft #%d)\n", client.Name, client.ID)
	}
	fmt.Println("✅ Demo data seeded")
}

func seedUser(db *gorm.DB, username, name, password string, roleID uint) *models.User {
	var user models.User
	err := db.Preload("Role").Where("username = ?", username).First(&user).Error
	if err == nil {
		return &user
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}
	user = models.User{
		Username: username,
		Name:     name,
		Email:    username + "@example.com",
		Password: hash,
		IsActive: true,
		RoleID:   &roleID,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("❌ Failed to create user %s: %v", username, err)
	}
	// reload with role so effective permissions resolve
	if err := db.Preload("Role").First(&user, user.ID).Error; err != nil {
		log.Fatalf("❌ Failed to reload user %s: %v", username, err)
	}
	return &user
}
