package seeders

import (
	"log"

	"campusdesk_go/config"
	"campusdesk_go/database"
	"campusdesk_go/models"
	"campusdesk_go/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedAll runs all seeders. Each one is idempotent.
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedAdmin(database.DB, config.AppConfig.AdminUsername, config.AppConfig.AdminPassword)
	if config.AppConfig.AppEnv != "production" {
		SeedDemoClass(database.DB)
	}

	log.Println("Database seeding completed successfully!")
}

// SeedAdmin creates the first admin account when no admin exists. Without a configured
// password a random one is generated and logged once.
func SeedAdmin(db *gorm.DB, username, password string) {
	var count int64
	db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		log.Println("Admin already seeded, skipping...")
		return
	}

	if password == "" {
		generated, err := utils.GenerateRandomString(12)
		if err != nil {
			log.Printf("Error generating admin password: %v", err)
			return
		}
		password = generated
		log.Printf("Generated password for admin %q: %s", username, password)
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		log.Printf("Error hashing admin password: %v", err)
		return
	}

	admin := models.User{Username: username, Password: hash, Role: models.RoleAdmin, Status: "active"}
	if err := db.Create(&admin).Error; err != nil {
		log.Printf("Error seeding admin %s: %v", username, err)
		return
	}
	log.Println("Admin seeded successfully")
}

// SeedDemoClass creates class CSE3A with five students whose password is their enrollment.
func SeedDemoClass(db *gorm.DB) {
	class := models.ClassGroup{Name: "CSE3A", Branch: "CSE", Year: "3", Section: "A"}
	if err := db.Where(models.ClassGroup{Name: class.Name}).FirstOrCreate(&class).Error; err != nil {
		log.Printf("Error seeding class %s: %v", class.Name, err)
		return
	}

	enrollments, err := utils.EnrollmentRange("0101CS221001", "0101CS221005")
	if err != nil {
		log.Printf("Error building demo enrollments: %v", err)
		return
	}
	students := make([]models.Student, 0, len(enrollments))
	for i, e := range enrollments {
		hash, err := utils.HashPassword(e)
		if err != nil {
			log.Printf("Error hashing password for %s: %v", e, err)
			return
		}
		students = append(students, models.Student{
			Enrollment: e,
			Name:       demoNames[i%len(demoNames)],
			Branch:     class.Branch,
			Year:       class.Year,
			Section:    class.Section,
			Class:      class.Name,
			Password:   hash,
		})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&students).Error; err != nil {
		log.Printf("Error seeding demo students: %v", err)
		return
	}
	log.Println("Demo class seeded successfully")
}

var demoNames = []string{"Aarav Sharma", "Diya Patel", "Kabir Singh", "Meera Iyer", "Rohan Gupta"}
