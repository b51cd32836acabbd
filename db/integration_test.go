package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/idemkit/testkit"
)

func TestDBPostgreSQL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	conn := testkit.NewPostgreSQLConnector(t)
	database, err := New(&Config{Driver: DriverPostgreSQL}, WithPostgreSQLConnector(conn), WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	require.NoError(t, database.DB(ctx).AutoMigrate(&testPost{}))

	post := testPost{UserID: 9, Contents: "from postgres"}
	require.NoError(t, database.DB(ctx).Create(&post).Error)
	assert.NotZero(t, post.ID)

	var count int64
	require.NoError(t, database.DB(ctx).Model(&testPost{}).Where("user_id = ?", 9).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
