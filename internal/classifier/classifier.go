// Package classifier decides whether an inbound request represents real API
// usage and which semantic category it belongs to. Everything here is pure:
// no I/O, no shared state.
package classifier

import (
	"net/http"
	"strings"
)

type Category string

const (
	EducationalOverview Category = "Educational Overview"
	SafetyData          Category = "Safety Data"
	PharmacologyData    Category = "Pharmacology Data"
	ChemicalProperties  Category = "Chemical Properties"
	Autocomplete        Category = "Autocomplete"
	StructureImage      Category = "Structure Image"
	StructureFile       Category = "Structure File"
	PugViewData         Category = "PUG-View Data"
	CompoundSearch      Category = "Compound Search"
	CompoundLookup      Category = "Compound Lookup"
	FormulaSearch       Category = "Formula Search"
	SMILESSearch        Category = "SMILES Search"
	OtherAPI            Category = "Other API"
)

// Every category in display order. Callers may not modify it.
var Categories = []Category{
	EducationalOverview,
	SafetyData,
	PharmacologyData,
	ChemicalProperties,
	Autocomplete,
	StructureImage,
	StructureFile,
	PugViewData,
	CompoundSearch,
	CompoundLookup,
	FormulaSearch,
	SMILESSearch,
	OtherAPI,
}

type Result struct {
	Trackable bool
	Category  Category
}

type rule struct {
	category Category
	match    func(path string) bool
}

func contains(subs ...string) func(string) bool {
	return func(p string) bool {
		for _, s := range subs {
			if strings.Contains(p, s) {
				return true
			}
		}
		return false
	}
}

func suffix(exts ...string) func(string) bool {
	return func(p string) bool {
		for _, ext := range exts {
			if strings.HasSuffix(p, "."+ext) || strings.HasSuffix(p, "/"+ext) {
				return true
			}
		}
		return false
	}
}

// First match wins. Image and SDF suffixes sit ahead of the compound/* rules
// so a /compound/cid/2244/PNG request counts as an image.
var rules = []rule{
	{EducationalOverview, contains("educational")},
	{SafetyData, contains("safety")},
	{PharmacologyData, contains("pharmacology")},
	{ChemicalProperties, contains("properties", "/property/")},
	{Autocomplete, contains("autocomplete")},
	{StructureImage, suffix("png")},
	{StructureFile, suffix("sdf")},
	{PugViewData, contains("pugview", "pug_view")},
	{CompoundSearch, contains("compound/name/")},
	{CompoundLookup, contains("compound/cid/")},
	{FormulaSearch, contains("compound/formula/", "compound/fastformula/")},
	{SMILESSearch, contains("compound/smiles/")},
}

// Proxy passthrough, educational annotations and autocomplete
var allowPrefixes = []string{
	"/api/pubchem",
	"/api/pugview",
	"/api/autocomplete",
	"/api/educational",
}

// Checked before allowPrefixes
var excludePrefixes = []string{
	"/api/docs",
	"/api/health",
	"/api/analytics",
	"/api/dashboard",
	"/api/admin",
	"/health",
	"/metrics",
	"/admin",
	"/docs",
}

// Maps a request to its trackability and category. target may carry a query
// string; only the path component is inspected.
func Classify(method, target string) Result {
	path := strings.ToLower(pathOnly(target))

	return Result{
		Trackable: trackable(method, path),
		Category:  categorize(path),
	}
}

func trackable(method, path string) bool {
	if strings.EqualFold(method, http.MethodOptions) {
		return false
	}

	for _, p := range excludePrefixes {
		if hasSegmentPrefix(path, p) {
			return false
		}
	}

	for _, p := range allowPrefixes {
		if hasSegmentPrefix(path, p) {
			return true
		}
	}

	return false
}

func categorize(path string) Category {
	for _, r := range rules {
		if r.match(path) {
			return r.category
		}
	}
	return OtherAPI
}

// Coarse route bucket used for endpoint counters, e.g. /api/pubchem/compound
func EndpointGroup(target string) string {
	segments := strings.Split(strings.Trim(pathOnly(target), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "/"
	}

	n := 2
	if len(segments) > 1 && (segments[1] == "pubchem" || segments[1] == "pugview") {
		n = 3
	}
	if n > len(segments) {
		n = len(segments)
	}

	return "/" + strings.Join(segments[:n], "/")
}

func pathOnly(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

func hasSegmentPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
