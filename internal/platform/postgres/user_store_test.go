package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/store"
)

func TestUserCreateHashesPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	user, err := domain.NewUser("customer@example.com", "averysecurepassword123")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.ID, user.Email, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := NewPostgresUserStore(db, nil, bcrypt.MinCost)
	require.NoError(t, s.Create(context.Background(), user))

	assert.Empty(t, user.Password, "plaintext password must be cleared")
	require.NotEmpty(t, user.HashedPassword)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(user.HashedPassword), []byte("averysecurepassword123")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT id, email, hashed_password").
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "hashed_password", "created_at", "updated_at"}))

	s := NewPostgresUserStore(db, nil, bcrypt.MinCost)
	_, err = s.GetByEmail(context.Background(), "missing@example.com")

	assert.ErrorIs(t, err, store.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDeleteNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	user, err := domain.NewUser("customer@example.com", "averysecurepassword123")
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM users").
		WithArgs(user.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewPostgresUserStore(db, nil, bcrypt.MinCost)
	err = s.Delete(context.Background(), user.ID)

	assert.ErrorIs(t, err, store.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
