package addons

// Manifest is the descriptor an addon publishes at its manifest URL.
// Types and Resources are never nil after Sanitize.
type Manifest struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Description  string    `json:"description,omitempty"`
	Logo         string    `json:"logo,omitempty"`
	Background   string    `json:"background,omitempty"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	Types        []string  `json:"types"`
	Resources    []string  `json:"resources"`
	Catalogs     []Catalog `json:"catalogs,omitempty"`
}

// Catalog is one content catalog advertised by a manifest.
type Catalog struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Flags carries per-installation switches.
// Enabled is a pointer so an explicit false survives JSON round trips;
// only an explicit false hides the addon from the pushed collection.
type Flags struct {
	Enabled   *bool `json:"enabled,omitempty"`
	Protected bool  `json:"protected,omitempty"`
	Official  bool  `json:"official,omitempty"`
}

// Metadata is the local customization overlay. Overlay values win over
// manifest values at push time; the manifest itself is never rewritten.
type Metadata struct {
	CustomName        string `json:"customName,omitempty"`
	CustomDescription string `json:"customDescription,omitempty"`
	CustomLogo        string `json:"customLogo,omitempty"`
}

// Addon is one installed or installable addon. TransportURL is the
// canonical identity: two entries with the same TransportURL are the same
// installed instance even when their manifest IDs collide.
type Addon struct {
	TransportURL string   `json:"transportUrl"`
	Manifest     Manifest `json:"manifest"`
	Flags        Flags    `json:"flags,omitempty"`
	Metadata     Metadata `json:"metadata,omitempty"`
}

// Hidden reports whether the addon is excluded from pushes to the
// collection store (Enabled explicitly false).
func (a Addon) Hidden() bool {
	return a.Flags.Enabled != nil && !*a.Flags.Enabled
}

// Health is the outcome of an origin reachability check.
type Health struct {
	IsOnline bool   `json:"isOnline"`
	Error    string `json:"error,omitempty"`
}

// UpdateCheckResult is the per-addon outcome of an update-check run.
type UpdateCheckResult struct {
	AddonID          string `json:"addonId"`
	Name             string `json:"name"`
	TransportURL     string `json:"transportUrl"`
	InstalledVersion string `json:"installedVersion"`
	LatestVersion    string `json:"latestVersion"`
	HasUpdate        bool   `json:"hasUpdate"`
	Health           Health `json:"health"`
}
