// Package profile provides the user profile domain type.
package profile

// Gender is the user's self-reported gender.
type Gender string

// Supported gender values.
const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderUnspecified Gender = "unspecified"
)

// UserProfile is the latest-value-only profile owned by the authenticated
// user. Height and weight are optional; nil means never provided.
type UserProfile struct {
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Gender    Gender   `json:"gender"`
	HeightCm  *float64 `json:"heightCm,omitempty"`
	WeightKg  *float64 `json:"weightKg,omitempty"`
	AvatarURL string   `json:"avatarUrl,omitempty"`
}

// Complete reports whether the profile carries enough data to be treated as
// present. A profile without a name is "profile incomplete", not an error.
func (p *UserProfile) Complete() bool {
	return p != nil && p.Name != ""
}
