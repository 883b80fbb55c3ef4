package domain

// Category is one of the known support request categories.
type Category string

const (
	CategoryShipping         Category = "shipping_or_delivery_question"
	CategoryPayment          Category = "payment_question"
	CategoryFrequencyChange  Category = "frequency_change_request"
	CategorySkipOrPause      Category = "skip_or_pause_request"
	CategoryRecipientChange  Category = "recipient_or_address_change"
	CategoryCustomization    Category = "customization_request"
	CategoryDamage           Category = "damaged_or_leaking_item_report"
	CategoryGratitude        Category = "gratitude"
	CategoryRetentionPrimary Category = "retention_primary_request"
	CategoryRetentionRepeat  Category = "retention_repeated_request"

	// CategoryUnknown is used on the safety-flagged path where no
	// classification ever runs.
	CategoryUnknown Category = "unknown"
)

// DefaultCategory is the safe fallback when the classifier returns a value
// outside the known set or fails entirely.
const DefaultCategory = CategoryShipping

// CategoryConfig drives per-category behavior: the generation model, the tool
// names exposed to the reply generator, and the opener group used by the
// response assembler.
type CategoryConfig struct {
	Model         string
	Tools         []string
	OpenerGroup   string
	AutoSendPhase int
}

var categoryConfigs = map[Category]CategoryConfig{
	CategoryShipping: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "track_package"},
		OpenerGroup:   "shipping",
		AutoSendPhase: 2,
	},
	CategoryPayment: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "get_payment_history"},
		OpenerGroup:   "payment",
		AutoSendPhase: 3,
	},
	CategoryFrequencyChange: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "change_frequency"},
		OpenerGroup:   "subscription",
		AutoSendPhase: 2,
	},
	CategorySkipOrPause: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "skip_month", "pause_subscription"},
		OpenerGroup:   "subscription",
		AutoSendPhase: 2,
	},
	CategoryRecipientChange: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "change_address"},
		OpenerGroup:   "subscription",
		AutoSendPhase: 2,
	},
	CategoryCustomization: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "get_box_contents"},
		OpenerGroup:   "subscription",
		AutoSendPhase: 2,
	},
	CategoryDamage: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "create_damage_claim", "request_photos"},
		OpenerGroup:   "damage",
		AutoSendPhase: 3,
	},
	CategoryGratitude: {
		Model:         "gpt-5.1",
		OpenerGroup:   "gratitude",
		AutoSendPhase: 1,
	},
	CategoryRetentionPrimary: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "generate_cancel_link", "get_customer_history"},
		OpenerGroup:   "retention",
		AutoSendPhase: 4,
	},
	CategoryRetentionRepeat: {
		Model:         "gpt-5.1",
		Tools:         []string{"get_subscription", "generate_cancel_link"},
		OpenerGroup:   "retention",
		AutoSendPhase: 4,
	},
}

var orderedCategories = []Category{
	CategoryShipping,
	CategoryPayment,
	CategoryFrequencyChange,
	CategorySkipOrPause,
	CategoryRecipientChange,
	CategoryCustomization,
	CategoryDamage,
	CategoryGratitude,
	CategoryRetentionPrimary,
	CategoryRetentionRepeat,
}

// ValidCategories lists every classifiable category in a stable order.
func ValidCategories() []Category {
	cats := make([]Category, len(orderedCategories))
	copy(cats, orderedCategories)
	return cats
}

// IsValidCategory reports whether c is in the known classifiable set.
func IsValidCategory(c Category) bool {
	_, ok := categoryConfigs[c]
	return ok
}

// ConfigFor returns the configuration for a category, falling back to the
// default category's configuration for unknown values.
func ConfigFor(c Category) CategoryConfig {
	if cfg, ok := categoryConfigs[c]; ok {
		return cfg
	}
	return categoryConfigs[DefaultCategory]
}

// IsRetention reports whether a category is one of the retention requests
// eligible for cancellation-link splicing.
func (c Category) IsRetention() bool {
	return c == CategoryRetentionPrimary || c == CategoryRetentionRepeat
}
