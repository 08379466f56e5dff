package vocab

import "context"

// seedValues is the initial vocabulary for a fresh deployment. It mirrors the
// taxonomy the retail side already uses; all of it can be extended at runtime
// through the admin endpoint.
var seedValues = map[string][]string{
	NamespaceRole: {
		"associate", "lead", "manager", "admin", "auditor",
	},
	NamespaceCategory: {
		"Beef", "Pork", "Poultry", "Seafood", "Lamb/Goat", "Veal",
		"Deli/Smoked", "Value-Added",
	},
	NamespaceProductType: {
		"Raw", "Ground", "Marinated", "Value-Added", "Ready-to-Cook",
		"Ready-to-Eat",
	},
	NamespaceEventType: {
		"Spoilage", "Trim/Waste", "Theft", "Damage", "Markdown",
		"Rework", "Return",
	},
}

// Seed loads the initial vocabulary. Add is idempotent, so seeding an
// already-populated store is safe.
func Seed(ctx context.Context, store Store) error {
	for namespace, values := range seedValues {
		for _, v := range values {
			if err := store.Add(ctx, namespace, v); err != nil {
				return err
			}
		}
	}
	return nil
}
