package model

import "time"

// Credential is the single stored OAuth credential for the calendar account.
type Credential struct {
	Email        string    `json:"email"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenExpiry  time.Time `json:"tokenExpiry"`
}

// Placeholder reports whether the record carries no usable account.
func (c *Credential) Placeholder() bool {
	return c == nil || c.Email == "" || c.AccessToken == ""
}

type Settings struct {
	DarkMode                 bool              `json:"darkMode"`
	NotificationsEnabled     bool              `json:"notificationsEnabled"`
	DefaultReminderFrequency ReminderFrequency `json:"defaultReminderFrequency"`
	CreatedAt                time.Time         `json:"createdAt"`
	UpdatedAt                time.Time         `json:"updatedAt"`
}

type SettingsPatch struct {
	DarkMode                 Field[bool]   `json:"darkMode"`
	NotificationsEnabled     Field[bool]   `json:"notificationsEnabled"`
	DefaultReminderFrequency Field[string] `json:"defaultReminderFrequency"`
}
