package backend_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/backend/backendtest"
	"git.sr.ht/~rjarry/mailbackend/models"
)

func TestSpecialFolderProviderIsDeferred(t *testing.T) {
	acct := backendtest.NewAccount("work", "", "")
	drafts := backend.SpecialFolderProvider(acct, models.DraftsFolder)

	_, err := drafts()
	var missing *backend.ConfigurationMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "work", missing.Account)
	assert.Equal(t, "drafts", missing.Setting)

	acct.SetFolder(models.DraftsFolder, "Drafts")
	name, err := drafts()
	require.NoError(t, err)
	assert.Equal(t, "Drafts", name)

	acct.SetFolder(models.DraftsFolder, "Brouillons")
	name, err = drafts()
	require.NoError(t, err)
	assert.Equal(t, "Brouillons", name)

	acct.SetFolder(models.DraftsFolder, "")
	_, err = drafts()
	assert.ErrorAs(t, err, &missing)
}

func TestSpecialFolderProviderConcurrentReads(t *testing.T) {
	acct := backendtest.NewAccount("work", "", "")
	acct.SetFolder(models.DraftsFolder, "Drafts")
	drafts := backend.SpecialFolderProvider(acct, models.DraftsFolder)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				name, err := drafts()
				if err == nil {
					assert.NotEmpty(t, name)
				}
			}
		}()
	}
	for j := 0; j < 100; j++ {
		if j%2 == 0 {
			acct.SetFolder(models.DraftsFolder, "")
		} else {
			acct.SetFolder(models.DraftsFolder, "Drafts")
		}
	}
	wg.Wait()
}
