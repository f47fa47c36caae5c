package models

// FolderRole names a special purpose folder of an account.
type FolderRole string

const (
	DraftsFolder  FolderRole = "drafts"
	SentFolder    FolderRole = "sent"
	TrashFolder   FolderRole = "trash"
	ArchiveFolder FolderRole = "archive"
	SpamFolder    FolderRole = "spam"
)

var FolderRoles = []FolderRole{
	DraftsFolder, SentFolder, TrashFolder, ArchiveFolder, SpamFolder,
}
