package auth

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/halverson/stackpad/internal/apperror"
	"github.com/halverson/stackpad/internal/plugins/audit"
)

// mockUserRepository implements UserRepository with overridable function
// fields. Unset fields return not-found or zero values.
type mockUserRepository struct {
	createFunc         func(ctx context.Context, user *User) error
	findByIDFunc       func(ctx context.Context, id string) (*User, error)
	findByEmailFunc    func(ctx context.Context, email string) (*User, error)
	findByUsernameFunc func(ctx context.Context, username string) (*User, error)
	findByLoginFunc    func(ctx context.Context, identifier string) (*User, error)
	countFunc          func(ctx context.Context) (int, error)
	updateProfileFunc  func(ctx context.Context, id, name, forename, username string) error
	updatePasswordFunc func(ctx context.Context, id, passwordHash string) error
	updateAvatarFunc   func(ctx context.Context, id string, avatarPath *string) error
	updateRoleFunc     func(ctx context.Context, id string, role Role) error
	countByRoleFunc    func(ctx context.Context, role Role) (int, error)
	listFunc           func(ctx context.Context, offset, limit int, sortBy, sortDir string) ([]User, error)
	deleteFunc         func(ctx context.Context, id string) error
}

func (m *mockUserRepository) Create(ctx context.Context, user *User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, apperror.NewNotFound("User not found.")
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFunc != nil {
		return m.findByEmailFunc(ctx, email)
	}
	return nil, apperror.NewNotFound("User not found.")
}

func (m *mockUserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	if m.findByUsernameFunc != nil {
		return m.findByUsernameFunc(ctx, username)
	}
	return nil, apperror.NewNotFound("User not found.")
}

func (m *mockUserRepository) FindByLogin(ctx context.Context, identifier string) (*User, error) {
	if m.findByLoginFunc != nil {
		return m.findByLoginFunc(ctx, identifier)
	}
	return nil, apperror.NewNotFound("User not found.")
}

func (m *mockUserRepository) Count(ctx context.Context) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, id, name, forename, username string) error {
	if m.updateProfileFunc != nil {
		return m.updateProfileFunc(ctx, id, name, forename, username)
	}
	return nil
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.updatePasswordFunc != nil {
		return m.updatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *mockUserRepository) UpdateAvatar(ctx context.Context, id string, avatarPath *string) error {
	if m.updateAvatarFunc != nil {
		return m.updateAvatarFunc(ctx, id, avatarPath)
	}
	return nil
}

func (m *mockUserRepository) UpdateRole(ctx context.Context, id string, role Role) error {
	if m.updateRoleFunc != nil {
		return m.updateRoleFunc(ctx, id, role)
	}
	return nil
}

func (m *mockUserRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	if m.countByRoleFunc != nil {
		return m.countByRoleFunc(ctx, role)
	}
	return 0, nil
}

func (m *mockUserRepository) List(ctx context.Context, offset, limit int, sortBy, sortDir string) ([]User, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, offset, limit, sortBy, sortDir)
	}
	return nil, nil
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

// recordingAuditor captures Append calls and no-ops the rest.
type recordingAuditor struct {
	entries []recordedEntry
}

type recordedEntry struct {
	message string
	level   audit.Level
}

func (r *recordingAuditor) Append(ctx context.Context, message string, userID *string, level audit.Level) {
	r.entries = append(r.entries, recordedEntry{message: message, level: level})
}

func (r *recordingAuditor) List(ctx context.Context, page, size int) ([]audit.Entry, int, error) {
	return nil, 0, nil
}

func (r *recordingAuditor) DeleteOne(ctx context.Context, id string) error { return nil }
func (r *recordingAuditor) DeleteAll(ctx context.Context) error            { return nil }

// stubAvatars returns fixed paths without touching the filesystem.
type stubAvatars struct {
	placeholderPath string
	remotePath      string
	remoteErr       error
}

func (s *stubAvatars) GeneratePlaceholder(ctx context.Context, seed string) (string, error) {
	return s.placeholderPath, nil
}

func (s *stubAvatars) FetchRemote(ctx context.Context, url string) (string, error) {
	if s.remoteErr != nil {
		return "", s.remoteErr
	}
	return s.remotePath, nil
}

type stubGate struct {
	open bool
}

func (s *stubGate) RegistrationOpen(ctx context.Context) (bool, error) { return s.open, nil }

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Name:     "Doe",
		Forename: "Jane",
		Email:    "jane@example.com",
		Username: "jane",
		Password: "Str0ng!pass",
		Confirm:  "Str0ng!pass",
	}
}

func newTestService(repo UserRepository) (Service, *recordingAuditor) {
	auditor := &recordingAuditor{}
	svc := NewService(repo, auditor, &stubAvatars{placeholderPath: "avatars/jane.png"}, &stubGate{open: true})
	return svc, auditor
}

func expectStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d, got nil", want)
	}
	if got := apperror.SafeCode(err); got != want {
		t.Fatalf("expected status %d, got %d (%v)", want, got, err)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	svc, _ := newTestService(&mockUserRepository{})

	input := validRegisterInput()
	input.Email = ""
	_, err := svc.Register(context.Background(), input)
	expectStatus(t, err, 422)
}

func TestRegister_PasswordMismatch(t *testing.T) {
	svc, _ := newTestService(&mockUserRepository{})

	input := validRegisterInput()
	input.Confirm = "Different1!"
	_, err := svc.Register(context.Background(), input)
	expectStatus(t, err, 400)
}

func TestRegister_WeakPasswords(t *testing.T) {
	svc, _ := newTestService(&mockUserRepository{})

	weak := []string{
		"Sh0rt!",      // too short
		"alllower1!",  // no uppercase
		"ALLUPPER1!",  // no lowercase
		"NoDigits!!",  // no digit
		"NoSpecial12", // no special character
	}
	for _, pw := range weak {
		input := validRegisterInput()
		input.Password = pw
		input.Confirm = pw
		if _, err := svc.Register(context.Background(), input); err == nil {
			t.Errorf("password %q should be rejected", pw)
		} else if apperror.SafeCode(err) != 400 {
			t.Errorf("password %q: expected 400, got %d", pw, apperror.SafeCode(err))
		}
	}
}

func TestRegister_EmailTaken(t *testing.T) {
	repo := &mockUserRepository{
		findByEmailFunc: func(ctx context.Context, email string) (*User, error) {
			return &User{ID: "u1", Email: email}, nil
		},
	}
	svc, _ := newTestService(repo)

	_, err := svc.Register(context.Background(), validRegisterInput())
	expectStatus(t, err, 409)
}

func TestRegister_UsernameTaken(t *testing.T) {
	repo := &mockUserRepository{
		findByUsernameFunc: func(ctx context.Context, username string) (*User, error) {
			return &User{ID: "u1", Username: username}, nil
		},
	}
	svc, _ := newTestService(repo)

	_, err := svc.Register(context.Background(), validRegisterInput())
	expectStatus(t, err, 409)
}

func TestRegister_DuplicateRaceMapsToConflict(t *testing.T) {
	// Pre-checks pass but the insert hits the unique index.
	repo := &mockUserRepository{
		createFunc: func(ctx context.Context, user *User) error {
			return ErrUsernameTaken
		},
	}
	svc, _ := newTestService(repo)

	_, err := svc.Register(context.Background(), validRegisterInput())
	expectStatus(t, err, 409)
}

func TestRegister_FirstUserBecomesAdmin(t *testing.T) {
	var created *User
	repo := &mockUserRepository{
		countFunc: func(ctx context.Context) (int, error) { return 0, nil },
		createFunc: func(ctx context.Context, user *User) error {
			created = user
			return nil
		},
	}
	svc, _ := newTestService(repo)

	user, err := svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != RoleAdmin {
		t.Errorf("first user should be admin, got %q", user.Role)
	}
	if created == nil || created.Role != RoleAdmin {
		t.Error("admin role must be persisted, not just returned")
	}
}

func TestRegister_LaterUsersGetUserRole(t *testing.T) {
	repo := &mockUserRepository{
		countFunc: func(ctx context.Context) (int, error) { return 3, nil },
	}
	svc, _ := newTestService(repo)

	user, err := svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != RoleUser {
		t.Errorf("expected role user, got %q", user.Role)
	}
}

func TestRegister_HashesPassword(t *testing.T) {
	var created *User
	repo := &mockUserRepository{
		createFunc: func(ctx context.Context, user *User) error {
			created = user
			return nil
		},
	}
	svc, _ := newTestService(repo)

	input := validRegisterInput()
	if _, err := svc.Register(context.Background(), input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.PasswordHash == input.Password {
		t.Fatal("password must not be stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte(input.Password)); err != nil {
		t.Errorf("stored hash does not verify against the password: %v", err)
	}
}

func TestRegister_ClosedRegistration(t *testing.T) {
	auditor := &recordingAuditor{}
	svc := NewService(&mockUserRepository{}, auditor, &stubAvatars{}, &stubGate{open: false})

	_, err := svc.Register(context.Background(), validRegisterInput())
	expectStatus(t, err, 403)
}

func TestRegister_FederatedOriginWithPhoto(t *testing.T) {
	var created *User
	repo := &mockUserRepository{
		createFunc: func(ctx context.Context, user *User) error {
			created = user
			return nil
		},
	}
	auditor := &recordingAuditor{}
	avatars := &stubAvatars{remotePath: "avatars/remote.png"}
	svc := NewService(repo, auditor, avatars, &stubGate{open: true})

	input := validRegisterInput()
	input.PhotoURL = "https://lh3.example.com/photo.jpg"
	if _, err := svc.Register(context.Background(), input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Origin != OriginFederated {
		t.Errorf("expected federated origin, got %q", created.Origin)
	}
	if created.AvatarPath == nil || *created.AvatarPath != "avatars/remote.png" {
		t.Errorf("expected remote avatar path, got %v", created.AvatarPath)
	}
}

func TestRegister_AppendsAuditEntry(t *testing.T) {
	svc, auditor := newTestService(&mockUserRepository{})

	if _, err := svc.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(auditor.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(auditor.entries))
	}
	if auditor.entries[0].level != audit.LevelInfo {
		t.Errorf("expected info entry, got %q", auditor.entries[0].level)
	}
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}
	return string(hash)
}

func TestLogin_Success(t *testing.T) {
	hash := hashOf(t, "Str0ng!pass")
	repo := &mockUserRepository{
		findByLoginFunc: func(ctx context.Context, identifier string) (*User, error) {
			return &User{ID: "u1", Username: "jane", PasswordHash: hash, Role: RoleUser}, nil
		},
	}
	svc, _ := newTestService(repo)

	user, err := svc.Login(context.Background(), LoginInput{Username: "jane", Password: "Str0ng!pass"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestLogin_ByEmail(t *testing.T) {
	hash := hashOf(t, "Str0ng!pass")
	var gotIdentifier string
	repo := &mockUserRepository{
		findByLoginFunc: func(ctx context.Context, identifier string) (*User, error) {
			gotIdentifier = identifier
			return &User{ID: "u1", Username: "jane", PasswordHash: hash}, nil
		},
	}
	svc, _ := newTestService(repo)

	if _, err := svc.Login(context.Background(), LoginInput{Email: "jane@example.com", Password: "Str0ng!pass"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotIdentifier != "jane@example.com" {
		t.Errorf("expected lookup by email, got %q", gotIdentifier)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	svc, _ := newTestService(&mockUserRepository{})

	_, err := svc.Login(context.Background(), LoginInput{Password: "Str0ng!pass"})
	expectStatus(t, err, 422)

	_, err = svc.Login(context.Background(), LoginInput{Username: "jane"})
	expectStatus(t, err, 422)
}

func TestLogin_UnknownAccount(t *testing.T) {
	svc, _ := newTestService(&mockUserRepository{})

	_, err := svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "Str0ng!pass"})
	expectStatus(t, err, 400)
}

func TestLogin_WrongPasswordRecordsAudit(t *testing.T) {
	hash := hashOf(t, "Str0ng!pass")
	repo := &mockUserRepository{
		findByLoginFunc: func(ctx context.Context, identifier string) (*User, error) {
			return &User{ID: "u1", Username: "jane", PasswordHash: hash}, nil
		},
	}
	svc, auditor := newTestService(repo)

	_, err := svc.Login(context.Background(), LoginInput{Username: "jane", Password: "wrong"})
	expectStatus(t, err, 400)

	if len(auditor.entries) != 1 {
		t.Fatalf("expected 1 audit entry for failed login, got %d", len(auditor.entries))
	}
	if auditor.entries[0].level != audit.LevelError {
		t.Errorf("failed login should be an error entry, got %q", auditor.entries[0].level)
	}
	if !strings.Contains(auditor.entries[0].message, "jane") {
		t.Errorf("audit message should name the account, got %q", auditor.entries[0].message)
	}
}

func TestSignInWithGoogle_UnknownEmail(t *testing.T) {
	svc, _ := newTestService(&mockUserRepository{})

	_, err := svc.SignInWithGoogle(context.Background(), "nobody@example.com")
	expectStatus(t, err, 404)
}

func TestSignInWithGoogle_Success(t *testing.T) {
	repo := &mockUserRepository{
		findByEmailFunc: func(ctx context.Context, email string) (*User, error) {
			return &User{ID: "u1", Username: "jane", Email: email, Origin: OriginFederated}, nil
		},
	}
	svc, _ := newTestService(repo)

	user, err := svc.SignInWithGoogle(context.Background(), "Jane@Example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestGetConnectedUser_Gone(t *testing.T) {
	svc, _ := newTestService(&mockUserRepository{})

	_, err := svc.GetConnectedUser(context.Background(), "deleted-id")
	expectStatus(t, err, 400)
}

func TestPasswordStrongEnough(t *testing.T) {
	cases := []struct {
		password string
		want     bool
	}{
		{"Str0ng!pass", true},
		{"Abcdef1!", true},
		{"abcdef1!", false},
		{"ABCDEF1!", false},
		{"Abcdefg!", false},
		{"Abcdefg1", false},
		{"Ab1!", false},
	}
	for _, tc := range cases {
		if got := PasswordStrongEnough(tc.password); got != tc.want {
			t.Errorf("PasswordStrongEnough(%q) = %v, want %v", tc.password, got, tc.want)
		}
	}
}
