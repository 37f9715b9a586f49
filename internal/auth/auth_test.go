package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"boardsync/internal/docstore"
	"boardsync/internal/model"

	"golang.org/x/crypto/bcrypt"
)

func newLocal(t *testing.T) (*Local, *docstore.SQLite) {
	t.Helper()
	ctx := context.Background()
	docs, err := docstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "docs.sqlite"), docstore.SQLiteOptions{WatchInterval: -1})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })
	l, err := NewLocal(ctx, docs.DB(), docs, Options{Secret: []byte("test-secret"), Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l, docs
}

func TestSignUpSignIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, docs := newLocal(t)

	id, err := l.SignUp(ctx, " Anna@Example.com ", "secret1", "Anna Kowalska")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if id.Email != "anna@example.com" || id.UID == "" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if cur, ok := l.Current(); !ok || cur.UID != id.UID {
		t.Fatalf("sign up should sign in, got %+v ok=%v", cur, ok)
	}

	var u model.User
	doc, err := docs.Get(ctx, "users", id.UID)
	if err != nil {
		t.Fatalf("users doc: %v", err)
	}
	if err := doc.Decode(&u); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if u.Name != "Anna Kowalska" || u.Email != "anna@example.com" || u.CreatedAt.IsZero() {
		t.Fatalf("unexpected users doc: %+v", u)
	}

	l.SignOut()
	if _, ok := l.Current(); ok {
		t.Fatalf("expected signed out")
	}
	if _, err := l.SignIn(ctx, "anna@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := l.SignIn(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email should look like bad credentials, got %v", err)
	}
	got, err := l.SignIn(ctx, "ANNA@example.com", "secret1")
	if err != nil || got.UID != id.UID {
		t.Fatalf("SignIn: %+v err=%v", got, err)
	}
}

func TestSignUpValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newLocal(t)

	var ve model.ValidationError
	if _, err := l.SignUp(ctx, "not-an-email", "secret1", "x"); !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
	if _, err := l.SignUp(ctx, "a@b.c", "123", "x"); !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
	id, err := l.SignUp(ctx, "jan@example.com", "secret1", "")
	if err != nil || id.Name != "jan" {
		t.Fatalf("empty name should default to the email local part: %+v err=%v", id, err)
	}
	if _, err := l.SignUp(ctx, "JAN@example.com", "secret2", "Jan"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUpdateDisplayNameAndLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, docs := newLocal(t)
	if _, err := l.UpdateDisplayName(ctx, "X"); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}
	id, _ := l.SignUp(ctx, "anna@example.com", "secret1", "Anna")
	if _, err := l.UpdateDisplayName(ctx, "Anna K."); err != nil {
		t.Fatalf("UpdateDisplayName: %v", err)
	}
	doc, _ := docs.Get(ctx, "users", id.UID)
	if doc.Fields["name"] != "Anna K." || doc.Fields["email"] != "anna@example.com" {
		t.Fatalf("users doc not merged: %v", doc.Fields)
	}
	found, err := l.LookupEmail(ctx, "Anna@Example.com")
	if err != nil || found.Name != "Anna K." {
		t.Fatalf("LookupEmail: %+v err=%v", found, err)
	}
	if _, err := l.LookupEmail(ctx, "ghost@example.com"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newLocal(t)
	id, _ := l.SignUp(ctx, "anna@example.com", "secret1", "Anna")

	tok, err := l.IssueToken(id)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	got, err := l.VerifyToken(tok)
	if err != nil || got.UID != id.UID || got.Name != "Anna" {
		t.Fatalf("VerifyToken: %+v err=%v", got, err)
	}

	if _, err := VerifyToken([]byte("other-secret"), tok, time.Now()); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret should fail, got %v", err)
	}
	if _, err := VerifyToken([]byte("test-secret"), tok, time.Now().Add(8*24*time.Hour)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token should fail, got %v", err)
	}
	if _, err := l.VerifyToken(tok + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token should fail, got %v", err)
	}

	l.SignOut()
	resumed, err := l.Resume(ctx, tok)
	if err != nil || resumed.UID != id.UID {
		t.Fatalf("Resume: %+v err=%v", resumed, err)
	}
}
