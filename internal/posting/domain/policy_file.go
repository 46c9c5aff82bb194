package domain

// PolicyFile is the on-disk form of a posting policy. Accounts name GL
// account entities by entity_code.
type PolicyFile struct {
	// Branch is a branch entity id, or empty for the organization default.
	Branch          string              `yaml:"branch" json:"branch,omitempty"`
	Timezone        string              `yaml:"timezone" json:"timezone,omitempty"`
	ClearingAccount string              `yaml:"clearing_account" json:"clearing_account"`
	Accounts        map[Category]string `yaml:"accounts" json:"accounts"`
}
