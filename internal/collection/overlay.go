package collection

import "addonsync/internal/addons"

// ApplyOverlay returns the manifest with the local customization
// overlay folded in. The collection store only understands the
// manifest's own name/logo/description, so overlay values are merged at
// push time; the stored local manifest is never rewritten.
func ApplyOverlay(m addons.Manifest, md addons.Metadata) addons.Manifest {
	if md.CustomName != "" {
		m.Name = md.CustomName
	}
	if md.CustomDescription != "" {
		m.Description = md.CustomDescription
	}
	if md.CustomLogo != "" {
		m.Logo = md.CustomLogo
	}
	return m
}
