package services

import (
	"log"

	"campusdesk_go/models"
	"campusdesk_go/utils"

	"gorm.io/gorm"
)

// LineGroupMatcher binds LINE groups to classes whose names match.
type LineGroupMatcher struct {
	db *gorm.DB
}

func NewLineGroupMatcher(db *gorm.DB) *LineGroupMatcher {
	return &LineGroupMatcher{db: db}
}

// MatchKey reduces a LINE group or class name to a comparable key: "CSE 3-A" and "cse3a" match.
func MatchKey(name string) string {
	return utils.NormalizeClass(name)
}

// MatchLineGroupsToClasses sets ClassGroup.LineGroupID for every active LINE group whose
// name matches a class. Classes already bound to another group keep their binding.
// It returns the number of classes updated.
func (m *LineGroupMatcher) MatchLineGroupsToClasses() int {
	var lineGroups []models.LineGroup
	if err := m.db.Where("is_active = ?", true).Find(&lineGroups).Error; err != nil {
		log.Printf("❌ Error fetching LineGroups: %v", err)
		return 0
	}
	var classes []models.ClassGroup
	if err := m.db.Find(&classes).Error; err != nil {
		log.Printf("❌ Error fetching classes: %v", err)
		return 0
	}

	byKey := make(map[string]*models.ClassGroup, len(classes))
	for i := range classes {
		byKey[MatchKey(classes[i].Name)] = &classes[i]
	}

	updated := 0
	for _, lg := range lineGroups {
		class, ok := byKey[MatchKey(lg.GroupName)]
		if !ok {
			log.Printf("⚠️ No matching class found for LineGroup '%s'", lg.GroupName)
			continue
		}
		if class.LineGroupID == lg.GroupID {
			continue
		}
		if class.LineGroupID != "" {
			log.Printf("ℹ️ Class '%s' already bound to LINE group %s", class.Name, class.LineGroupID)
			continue
		}
		if err := m.db.Model(class).Update("line_group_id", lg.GroupID).Error; err != nil {
			log.Printf("❌ Failed to bind LineGroup '%s' to class '%s': %v", lg.GroupName, class.Name, err)
			continue
		}
		class.LineGroupID = lg.GroupID
		log.Printf("✅ Matched LineGroup '%s' → class '%s'", lg.GroupName, class.Name)
		updated++
	}
	return updated
}
