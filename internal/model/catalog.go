package model

// CatalogEntry describes one collectible item. Entries are read-only at runtime.
type CatalogEntry struct {
	OfficialName string   `json:"name" yaml:"name"`
	ImageRef     string   `json:"image" yaml:"image"`
	Rarity       string   `json:"rarity,omitempty" yaml:"rarity,omitempty"`
	Aliases      []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Names returns the official name followed by every alias.
func (e CatalogEntry) Names() []string {
	names := make([]string, 0, len(e.Aliases)+1)
	names = append(names, e.OfficialName)
	return append(names, e.Aliases...)
}
