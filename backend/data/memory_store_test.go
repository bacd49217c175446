package data_test

import (
	"testing"

	"github.com/fluxhook/fluxhook/backend/data"
)

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) data.Store {
		return data.NewMemoryStore()
	})
}
