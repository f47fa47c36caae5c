package backend

import (
	"git.sr.ht/~rjarry/mailbackend/models"
)

// FolderProvider returns the name of a folder at the moment it is needed.
type FolderProvider func() (string, error)

// SpecialFolderProvider reads the folder configured for role from acct on
// every call, so that configuration changes made after a backend was built
// are honoured. An unset folder yields a *ConfigurationMissingError.
func SpecialFolderProvider(acct Account, role models.FolderRole) FolderProvider {
	return func() (string, error) {
		name, ok := acct.SpecialFolder(role)
		if !ok || name == "" {
			return "", &ConfigurationMissingError{
				Account: acct.Name(),
				Setting: string(role),
			}
		}
		return name, nil
	}
}
