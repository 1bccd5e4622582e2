//go:build integration

package grants

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/platinummonkey/collab/pkg/access"
	"github.com/platinummonkey/collab/pkg/projects"
	"github.com/platinummonkey/collab/pkg/storage"
	"github.com/platinummonkey/collab/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_Postgres(t *testing.T) {
	db := storagetest.NewPostgres(t,
		storagetest.Component{Name: projects.Component, Migrations: projects.Migrations()},
		storagetest.Component{Name: Component, Migrations: Migrations()},
	)
	storagetest.Exec(t, db, `INSERT INTO projects (id, name, owner_id) VALUES ('p1', 'One', 'owner')`)

	store := NewSQLStore(db, storage.DialectPostgres)
	ctx := context.Background()

	g, err := store.Upsert(ctx, "p1", "bob", access.RoleViewer, "owner", t0)
	require.NoError(t, err)
	assert.True(t, g.GrantedAt.Equal(t0))

	g, err = store.Upsert(ctx, "p1", "bob", access.RoleEditor, "owner", t0.Add(1))
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, g.Role)

	// Serialized read-count-write: ten writers racing for three seats
	const limit = 3
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.WithProjectTx(ctx, "p1", func(tx Store) error {
				n, err := tx.CountByProject(ctx, "p1")
				if err != nil {
					return err
				}
				if n >= limit {
					return nil
				}
				_, err = tx.Upsert(ctx, "p1", fmt.Sprintf("user-%d", i), access.RoleViewer, "owner", t0)
				if err == nil {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
				return err
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := store.CountByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, limit, n)
	assert.Equal(t, limit-1, admitted)

	storagetest.Exec(t, db, `DELETE FROM projects WHERE id = 'p1'`)
	n, err = store.CountByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
