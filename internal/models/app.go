package models

import "strings"

type AppCategory string

const (
	CategoryAll          AppCategory = "all"
	CategoryEducation    AppCategory = "education"
	CategoryReading      AppCategory = "reading"
	CategoryMath         AppCategory = "math"
	CategoryScience      AppCategory = "science"
	CategoryCreativity   AppCategory = "creativity"
	CategoryProductivity AppCategory = "productivity"
	CategoryUtilities    AppCategory = "utilities"
	CategoryGames        AppCategory = "games"
	CategoryOther        AppCategory = "other"
)

var AppCategories = []AppCategory{
	CategoryAll, CategoryEducation, CategoryReading, CategoryMath, CategoryScience,
	CategoryCreativity, CategoryProductivity, CategoryUtilities, CategoryGames, CategoryOther,
}

func ParseAppCategory(s string) (AppCategory, bool) {
	c := AppCategory(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryAll, true
	}
	for _, known := range AppCategories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Order matters: the first matching rule wins.
var categoryKeywords = []struct {
	category AppCategory
	keywords []string
}{
	{CategoryReading, []string{"read", "book", "epic", "library", "phonics", "story", "kindle"}},
	{CategoryMath, []string{"math", "number", "count", "prodigy", "calcul", "fraction", "geometr"}},
	{CategoryScience, []string{"science", "nature", "planet", "space", "chem", "bio", "lab"}},
	{CategoryCreativity, []string{"draw", "paint", "art", "music", "garageband", "imovie", "clips", "sketch", "photo", "camera"}},
	{CategoryProductivity, []string{"pages", "numbers", "keynote", "docs", "sheets", "slides", "word", "excel", "powerpoint", "notes", "classroom"}},
	{CategoryGames, []string{"game", "play", "puzzle", "minecraft"}},
	{CategoryEducation, []string{"learn", "edu", "school", "lesson", "quiz", "kahoot", "khan", "abc", "study", "student login"}},
	{CategoryUtilities, []string{"safari", "settings", "calculator", "clock", "files", "browser", "scanner", "timer"}},
}

// ClassifyApp assigns a category from the app's name, bundle id and vendor.
// It runs once when metadata is ingested; filters read AppInfo.Category.
func ClassifyApp(name, bundleID, vendor string) AppCategory {
	haystack := strings.ToLower(name + " " + bundleID + " " + vendor)
	for _, rule := range categoryKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// AppInfo is display metadata for an installed app. Values are immutable once
// fetched.
type AppInfo struct {
	BundleID    string      `json:"bundle_id"`
	Name        string      `json:"name"`
	Icon        string      `json:"icon"`
	Vendor      string      `json:"vendor"`
	Description string      `json:"description"`
	Category    AppCategory `json:"category"`
}

// NewAppInfo builds the record and precomputes its category.
func NewAppInfo(bundleID, name, icon, vendor, description string) AppInfo {
	return AppInfo{
		BundleID:    bundleID,
		Name:        name,
		Icon:        icon,
		Vendor:      vendor,
		Description: description,
		Category:    ClassifyApp(name, bundleID, vendor),
	}
}
