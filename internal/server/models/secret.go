package models

import (
	"slices"
	"strings"
	"time"
)

// Category is the closed set of vault record categories.
type Category string

const (
	CategoryPersonal      Category = "personal"
	CategorySocial        Category = "social"
	CategoryBanking       Category = "banking"
	CategoryWork          Category = "work"
	CategoryEntertainment Category = "entertainment"
	CategoryShopping      Category = "shopping"
	CategoryOthers        Category = "others"
)

var categories = []Category{
	CategoryPersonal, CategorySocial, CategoryBanking, CategoryWork,
	CategoryEntertainment, CategoryShopping, CategoryOthers,
}

// ParseCategory validates s against the enumeration. An empty string maps
// to CategoryOthers.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryOthers, true
	}
	c := Category(s)
	return c, slices.Contains(categories, c)
}

// SecretRecord is a stored vault entry. The secret value only exists as
// ciphertext bound to OwnerID.
type SecretRecord struct {
	ID               string
	OwnerID          string
	SiteName         string
	SiteURL          string
	Username         string
	SecretCiphertext []byte
	SecretNonce      []byte
	Notes            string
	Category         Category
	Tags             []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RecordView is a vault record as returned to its owner: the secret is
// decrypted, or Error is set when decryption failed. Ciphertext never
// appears here.
type RecordView struct {
	ID        string    `json:"id"`
	SiteName  string    `json:"siteName"`
	SiteURL   string    `json:"siteUrl"`
	Username  string    `json:"username,omitempty"`
	Secret    string    `json:"password,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Category  Category  `json:"category"`
	Tags      []string  `json:"tags"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeTags trims entries, drops empty ones and removes duplicates while
// keeping the first occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
