package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"

	"github.com/ceyewan/idemkit/testkit"
	"github.com/ceyewan/idemkit/xerrors"
)

type testPost struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   int64  `gorm:"index"`
	Contents string `gorm:"size:255"`
}

func TestNewValidation(t *testing.T) {
	_, err := New(&Config{Driver: "oracle"})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))

	_, err = New(&Config{Driver: DriverSQLite})
	assert.True(t, xerrors.Is(err, ErrConnectorRequired))

	_, err = New(&Config{Driver: DriverMySQL})
	assert.True(t, xerrors.Is(err, ErrConnectorRequired))

	_, err = New(&Config{Driver: DriverPostgreSQL})
	assert.True(t, xerrors.Is(err, ErrConnectorRequired))
}

func TestDBSQLite(t *testing.T) {
	conn := testkit.NewSQLiteConnector(t)
	database, err := New(&Config{Driver: DriverSQLite}, WithSQLiteConnector(conn), WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	require.NoError(t, database.DB(ctx).AutoMigrate(&testPost{}))

	t.Run("create and read", func(t *testing.T) {
		post := testPost{UserID: 1, Contents: "hello"}
		require.NoError(t, database.DB(ctx).Create(&post).Error)
		assert.NotZero(t, post.ID)

		var fetched testPost
		require.NoError(t, database.DB(ctx).First(&fetched, post.ID).Error)
		assert.Equal(t, "hello", fetched.Contents)
	})

	t.Run("transaction rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
			if err := tx.Create(&testPost{UserID: 2, Contents: "rolled back"}).Error; err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		var count int64
		require.NoError(t, database.DB(ctx).Model(&testPost{}).Where("user_id = ?", 2).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestDBTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	conn := testkit.NewSQLiteConnector(t)
	database, err := New(&Config{Driver: DriverSQLite}, WithSQLiteConnector(conn), WithTracer(tp), WithSilentMode())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, database.DB(ctx).AutoMigrate(&testPost{}))
	require.NoError(t, database.DB(ctx).Create(&testPost{UserID: 3, Contents: "traced"}).Error)

	assert.NotEmpty(t, recorder.Ended(), "otelgorm 应为 SQL 生成 span")
}
