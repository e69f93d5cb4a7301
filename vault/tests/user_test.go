package tests

import (
	"errors"
	"testing"

	"docuvault/vault/schema"
)

func TestUserRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	login, err := c.register("user1", "user1@mail.com", "password123", "")
	if err != nil {
		t.Fatal(err)
	}

	err = c.login(login)
	if err != nil {
		t.Fatal(err)
	}

	info, err := c.me()
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "user1" || info.Email != "user1@mail.com" || info.Role != schema.RoleViewer {
		t.Fatalf("incorrect user info: %+v", info)
	}
}

func TestUserRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	_, err := c.register("user1", "user1@mail.com", "password123", schema.RoleEditor)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.register("user1", "other@mail.com", "password123", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}

	_, err = c.register("other", "user1@mail.com", "password123", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	// Email uniqueness is case insensitive.
	_, err = c.register("other", "USER1@MAIL.COM", "password123", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate email with different case, got %v", err)
	}

	_, err = c.register("user2", "user2@mail.com", "password123", "superuser")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request for invalid role, got %v", err)
	}

	_, err = c.register("", "user3@mail.com", "password123", "")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request for missing name, got %v", err)
	}
}

func TestUserLoginInvalidCredentials(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	login, err := c.register("user1", "user1@mail.com", "password123", "")
	if err != nil {
		t.Fatal(err)
	}

	err = c.login(loginInfo{Email: login.Email, Password: "wrong_password"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}

	err = c.login(loginInfo{Email: "nobody@mail.com", Password: "password123"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}

	// Login accepts the email in any case.
	err = c.login(loginInfo{Email: "USER1@mail.com", Password: login.Password})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUserEndpointsRequireAuth(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	_, err := c.me()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	_, err = c.listUsers()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUserRoleManagement(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("user1", schema.RoleViewer)
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.listUsers()
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non admin list, got %v", err)
	}

	err = user.changeRole(user.userId, schema.RoleAdmin)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non admin role change, got %v", err)
	}

	err = admin.changeRole(user.userId, schema.RoleEditor)
	if err != nil {
		t.Fatal(err)
	}

	info, err := user.me()
	if err != nil {
		t.Fatal(err)
	}
	if info.Role != schema.RoleEditor {
		t.Fatalf("expected role to be updated, got %v", info.Role)
	}

	users, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestUserCannotDemoteLastAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	err = admin.changeRole(admin.userId, schema.RoleViewer)
	if err == nil {
		t.Fatal("expected error demoting the only admin")
	}

	info, err := admin.me()
	if err != nil {
		t.Fatal(err)
	}
	if info.Role != schema.RoleAdmin {
		t.Fatalf("expected admin role to be unchanged, got %v", info.Role)
	}

	// With a second admin the original one can step down.
	second, err := env.newUser("user1", schema.RoleViewer)
	if err != nil {
		t.Fatal(err)
	}
	err = admin.changeRole(second.userId, schema.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	err = admin.changeRole(admin.userId, schema.RoleViewer)
	if err != nil {
		t.Fatal(err)
	}
}
