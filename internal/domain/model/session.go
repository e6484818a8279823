package model

// Profile is the user-supplied data the prompts are built from.
type Profile struct {
	DisplayName     string  `json:"display_name"`
	Goal            string  `json:"goal"`
	Age             int     `json:"age"`
	Sex             string  `json:"sex"`
	HeightCm        float64 `json:"height_cm"`
	CurrentWeightKg float64 `json:"current_weight_kg"`
	TargetWeightKg  float64 `json:"target_weight_kg"`
	ActivityLevel   string  `json:"activity_level"`
	Notes           string  `json:"notes"`
}

// Session is a submitted profile plus a reference to the source photo.
type Session struct {
	ID               string
	Profile          Profile
	PhotoPath        string
	PhotoContentType string
}
