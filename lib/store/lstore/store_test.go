package lstore

import (
	"testing"

	"github.com/ValentinKolb/dTree/lib/store"
	storetesting "github.com/ValentinKolb/dTree/lib/store/testing"
)

func Test(t *testing.T) {
	storetesting.RunStoreTests(t, "LocalStore", func() store.IStore {
		return NewLocalStore()
	})
}
