package models

import "time"

// Evidence is the sparse set of facts known about a scanned app.
// A nil section means that source produced nothing; evaluators treat that as absence, not failure.
type Evidence struct {
	Store     *StoreRecord     `json:"store,omitempty"`
	Package   *PackageEvidence `json:"package,omitempty"`
	Reference *Reference       `json:"reference,omitempty"`
}

// AppID returns the best available application identifier
func (e *Evidence) AppID() string {
	if e == nil {
		return ""
	}
	if e.Store != nil && e.Store.AppID != "" {
		return e.Store.AppID
	}
	if e.Package != nil {
		return e.Package.Package
	}
	return ""
}

// Title returns the best available human-readable app name
func (e *Evidence) Title() string {
	if e == nil {
		return ""
	}
	if e.Store != nil && e.Store.Title != "" {
		return e.Store.Title
	}
	if e.Package != nil {
		return e.Package.Label
	}
	return ""
}

// StoreRecord is the metadata of a store listing
type StoreRecord struct {
	AppID            string  `json:"appId"`
	Title            string  `json:"title"`
	Developer        string  `json:"developer,omitempty"`
	DeveloperEmail   string  `json:"developerEmail,omitempty"`
	DeveloperWebsite string  `json:"developerWebsite,omitempty"`
	Installs         string  `json:"installs,omitempty"`
	Ratings          int64   `json:"ratings,omitempty"`
	Score            float64 `json:"score,omitempty"`
	Histogram        []int64 `json:"histogram,omitempty"`
	Genre            string  `json:"genre,omitempty"`
	Released         string  `json:"released,omitempty"`
	Updated          int64   `json:"updated,omitempty"`
	Version          string  `json:"version,omitempty"`
	URL              string  `json:"url,omitempty"`
}

// Certificate is one signing certificate extracted from a package
type Certificate struct {
	DER []byte `json:"der"`
}

// DexStats holds coarse bytecode statistics
type DexStats struct {
	NumClasses    *int     `json:"num_classes"`
	NumMethods    *int     `json:"num_methods"`
	ClassesSample []string `json:"classes_sample"`
}

// PackageHeuristics are cheap flags derived while inspecting a package
type PackageHeuristics struct {
	HasOverlay    bool `json:"has_overlay"`
	HasNativeLibs bool `json:"has_native_libs"`
	AssetCount    int  `json:"asset_count"`
}

// PackageEvidence is what the inspector extracted from an installable package.
// Permissions and ResourceStrings distinguish nil (not extracted) from empty (extracted, nothing found).
type PackageEvidence struct {
	Package     string `json:"package"`
	Label       string `json:"label,omitempty"`
	VersionName string `json:"versionName,omitempty"`
	VersionCode int32  `json:"versionCode,omitempty"`
	MinSDK      int32  `json:"minSdk,omitempty"`
	TargetSDK   int32  `json:"targetSdk,omitempty"`

	Certificates []Certificate `json:"certificates,omitempty"`
	Permissions  []string      `json:"permissions"`
	Activities   []string      `json:"activities,omitempty"`
	Services     []string      `json:"services,omitempty"`
	Receivers    []string      `json:"receivers,omitempty"`

	Icon            []byte   `json:"icon,omitempty"`
	ResourceStrings []string `json:"resource_strings"`

	Files      []string          `json:"files,omitempty"`
	NativeLibs []string          `json:"native_libs,omitempty"`
	Assets     []string          `json:"assets,omitempty"`
	Dex        DexStats          `json:"dex"`
	Heuristics PackageHeuristics `json:"heuristics"`

	AnalysisGeneratedAt time.Time `json:"analysis_generated_at"`
}

// Reference is the known-good counterpart of an app, used by cross-reference signals
type Reference struct {
	PackageName string    `json:"package_name" validate:"required"`
	Brand       string    `json:"brand,omitempty"`
	Developer   string    `json:"developer,omitempty"`
	IconPHash   string    `json:"icon_phash,omitempty"`
	CertSHA256  []string  `json:"cert_sha256,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
