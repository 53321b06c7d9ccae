package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"leafwiki/api/internal/store"
)

type fakeUserStore struct {
	getUserByEmailFn func(context.Context, string) (store.User, error)
	insertUserFn     func(context.Context, store.User) (store.User, error)
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) InsertUser(ctx context.Context, user store.User) (store.User, error) {
	if f.insertUserFn != nil {
		return f.insertUserFn(ctx, user)
	}
	return user, nil
}

func TestSignInVerifiesPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	fs := &fakeUserStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			if email != "ada@example.com" {
				t.Fatalf("expected normalized email, got %q", email)
			}
			return store.User{Email: email, PasswordHash: string(hash), IsAdmin: true}, nil
		},
	}
	svc := NewService(fs, []byte("secret"))

	token, err := svc.SignIn(context.Background(), "  Ada@Example.COM ", "correct horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	claims, err := svc.FromToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Email != "ada@example.com" || !claims.Admin {
		t.Fatalf("unexpected claims: %#v", claims)
	}

	if _, err := svc.SignIn(context.Background(), "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestSignInUnknownUser(t *testing.T) {
	svc := NewService(&fakeUserStore{}, []byte("secret"))
	if _, err := svc.SignIn(context.Background(), "nobody@example.com", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := NewService(&fakeUserStore{}, []byte("secret"))
	if _, err := svc.SignUp(context.Background(), "not-an-email", "longenough", ""); err == nil {
		t.Fatal("expected email validation error")
	}
	if _, err := svc.SignUp(context.Background(), "ada@example.com", "short", ""); err == nil {
		t.Fatal("expected password validation error")
	}
}
