package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/log"
)

// PasswordCost is the bcrypt work factor for stored passwords.
const PasswordCost = 12

type NewUser struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	OwnerUUID string `json:"ownerUuid"`
}

type UserChanges struct {
	Username  *string `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	OwnerUUID *string `json:"ownerUuid"`
}

type AccountUseCase struct {
	newUnitOfWork domain.UnitOfWorkFactory
	passwordCost  int
}

func NewAccountUseCase(newUnitOfWork domain.UnitOfWorkFactory) *AccountUseCase {
	return &AccountUseCase{newUnitOfWork: newUnitOfWork, passwordCost: PasswordCost}
}

func (uc *AccountUseCase) ListUsers(ctx context.Context) ([]*domain.User, error) {
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()
	return uow.Users().List(ctx)
}

func (uc *AccountUseCase) GetUser(ctx context.Context, id string) (*domain.User, error) {
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()
	return uow.Users().GetByID(ctx, id)
}

func (uc *AccountUseCase) CreateUser(ctx context.Context, in NewUser) (*domain.User, error) {
	if err := validateUser(in.Username, in.Email, in.OwnerUUID); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, &domain.ValidationError{Field: "password", Message: "is required"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), uc.passwordCost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	user := &domain.User{
		Username:  in.Username,
		Password:  string(hash),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		OwnerUUID: strings.ToLower(in.OwnerUUID),
	}
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()
	if err := uow.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	log.G(ctx).WithField("user_id", user.ID).Info("user created")
	return user, nil
}

func (uc *AccountUseCase) UpdateUser(ctx context.Context, id string, changes UserChanges) (*domain.User, error) {
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()

	var user *domain.User
	err := withTransaction(ctx, uow, func() error {
		var err error
		if user, err = uow.Users().GetByID(ctx, id); err != nil {
			return err
		}
		applyUserChanges(user, changes)
		if err := validateUser(user.Username, user.Email, user.OwnerUUID); err != nil {
			return err
		}
		return uow.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func applyUserChanges(user *domain.User, changes UserChanges) {
	if changes.Username != nil {
		user.Username = *changes.Username
	}
	if changes.FirstName != nil {
		user.FirstName = *changes.FirstName
	}
	if changes.LastName != nil {
		user.LastName = *changes.LastName
	}
	if changes.Email != nil {
		user.Email = *changes.Email
	}
	if changes.OwnerUUID != nil {
		user.OwnerUUID = strings.ToLower(*changes.OwnerUUID)
	}
}

func (uc *AccountUseCase) ChangePassword(ctx context.Context, id, password string) error {
	if password == "" {
		return &domain.ValidationError{Field: "password", Message: "is required"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), uc.passwordCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()
	return uow.Users().UpdatePassword(ctx, id, string(hash))
}

// DeleteUser removes the user together with their ssh keys.
func (uc *AccountUseCase) DeleteUser(ctx context.Context, id string) error {
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()
	return withTransaction(ctx, uow, func() error {
		if err := uow.SSHKeys().DeleteByUser(ctx, id); err != nil {
			return err
		}
		return uow.Users().Delete(ctx, id)
	})
}

func (uc *AccountUseCase) ListSSHKeys(ctx context.Context, userID string) ([]*domain.SSHKey, error) {
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()
	if _, err := uow.Users().GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return uow.SSHKeys().ListByUser(ctx, userID)
}

func (uc *AccountUseCase) AddSSHKey(ctx context.Context, userID, key, description string) (*domain.SSHKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &domain.ValidationError{Field: "key", Message: "is required"}
	}
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()

	sshKey := &domain.SSHKey{UserID: userID, Key: key, Description: description}
	err := withTransaction(ctx, uow, func() error {
		if _, err := uow.Users().GetByID(ctx, userID); err != nil {
			return err
		}
		return uow.SSHKeys().Create(ctx, sshKey)
	})
	if err != nil {
		return nil, err
	}
	return sshKey, nil
}

func (uc *AccountUseCase) DeleteSSHKey(ctx context.Context, userID, keyID string) error {
	uow := uc.newUnitOfWork(ctx)
	defer uow.Close()
	return uow.SSHKeys().Delete(ctx, userID, keyID)
}

func validateUser(username, email, ownerUUID string) error {
	if strings.TrimSpace(username) == "" {
		return &domain.ValidationError{Field: "username", Message: "is required"}
	}
	if !strings.Contains(email, "@") {
		return &domain.ValidationError{Field: "email", Message: "must be an email address"}
	}
	if ownerUUID != "" {
		if _, err := uuid.Parse(ownerUUID); err != nil {
			return &domain.ValidationError{Field: "ownerUuid", Message: "must be a uuid"}
		}
	}
	return nil
}
