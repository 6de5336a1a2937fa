package models

// GetAllModels returns all model types for migration
func GetAllModels() []interface{} {
	return []interface{}{
		// User models
		&User{},
		&Session{},

		// Profile models
		&Profile{},
		&ProfileLink{},

		// Domain models
		&CustomDomain{},
	}
}
