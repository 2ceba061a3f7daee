package config

import (
	"docgate/utils"
	"fmt"

	"github.com/BurntSushi/toml"
)

// ApprovedEmails is the fixed set of addresses the link-issuing utility serves.
var ApprovedEmails = []string{
	"gksmartdba@gmail.com",
}

type allowlistFile struct {
	Emails []string `toml:"emails"`
}

// Allowlist returns ApprovedEmails extended by the TOML file at path, if any.
// Addresses are lowercased and deduplicated, first occurrence wins. Blank
// entries are skipped; anything else that is not an address is an error.
func Allowlist(path string) ([]string, error) {
	emails := append([]string(nil), ApprovedEmails...)
	if path != "" {
		var f allowlistFile
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("reading allow-list %s: %w", path, err)
		}
		emails = append(emails, f.Emails...)
	}

	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = utils.NormalizeEmail(e)
		if e == "" || seen[e] {
			continue
		}
		if err := utils.ValidateEmail(e); err != nil {
			return nil, fmt.Errorf("allow-list entry %q: %w", e, err)
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}
