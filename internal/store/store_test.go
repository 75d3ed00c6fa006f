package store

import (
	"errors"
	"testing"

	"github.com/pavelanni/edulingo/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:     username,
		DisplayName:  "Display " + username,
		PasswordHash: "hash",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("createTestUser: %v", err)
	}
	return id
}

func TestKV(t *testing.T) {
	s := newTestStore(t)
	kv := s.KV()

	if _, ok, err := kv.Get("edulingo:alice:xp"); ok || err != nil {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}

	if err := kv.Set("edulingo:alice:xp", "30"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set("edulingo:bob:xp", "10"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set("edulingo:alice:xp", "50"); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"edulingo:alice:xp", "50"},
		{"edulingo:bob:xp", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok, err := kv.Get(tt.key)
			if err != nil || !ok {
				t.Fatalf("Get(%s) = ok %v, err %v", tt.key, ok, err)
			}
			if got != tt.want {
				t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}

	if err := kv.Remove("edulingo:alice:xp"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := kv.Get("edulingo:alice:xp"); ok {
		t.Error("key should be gone after Remove")
	}
	if err := kv.Remove("edulingo:alice:xp"); err != nil {
		t.Errorf("Remove of missing key: %v", err)
	}
	if _, ok, _ := kv.Get("edulingo:bob:xp"); !ok {
		t.Error("other identity's key should be untouched")
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil || count != 0 {
		t.Fatalf("UserCount = %d, %v", count, err)
	}

	id := createTestUser(t, s, "alice")
	createTestUser(t, s, "bob")

	u, err := s.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id || u.Role != model.UserRoleLearner || !u.Active {
		t.Fatalf("unexpected user: %+v", u)
	}

	missing, err := s.GetUserByUsername("nobody")
	if err != nil || missing != nil {
		t.Errorf("GetUserByUsername(nobody) = %+v, %v", missing, err)
	}
	missing, err = s.GetUserByID(9999)
	if err != nil || missing != nil {
		t.Errorf("GetUserByID(9999) = %+v, %v", missing, err)
	}

	if _, err := s.CreateUser(model.User{Username: "alice", PasswordHash: "x"}); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate username: expected ErrUserExists, got %v", err)
	}

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Errorf("ListUsers = %+v", users)
	}

	if err := s.SetUserPassword(id, "newhash"); err != nil {
		t.Fatalf("SetUserPassword: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if u.PasswordHash != "newhash" {
		t.Errorf("password hash = %q, want newhash", u.PasswordHash)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	id := createTestUser(t, s, "alice")

	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession = %+v, %v", sess, err)
	}
	if sess.UserID != id {
		t.Errorf("UserID = %d, want %d", sess.UserID, id)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != AuthSessionTTL {
		t.Errorf("TTL = %v, want %v", got, AuthSessionTTL)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("session should be gone")
	}

	unknown, err := s.GetAuthSession("nope")
	if err != nil || unknown != nil {
		t.Errorf("GetAuthSession(nope) = %+v, %v", unknown, err)
	}
}

func TestDeactivationEndsSessions(t *testing.T) {
	s := newTestStore(t)
	id := createTestUser(t, s, "alice")
	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ := s.GetUserByID(id)
	if u.Active {
		t.Error("user should be inactive")
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("deactivation should end the user's sessions")
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatal(err)
	}
	u, _ = s.GetUserByID(id)
	if !u.Active {
		t.Error("user should be active again")
	}
}
